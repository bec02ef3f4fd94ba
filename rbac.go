package auth

import "context"

// Action enumerates the operations the policy table covers.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionAssign  Action = "assign"
	ActionApprove Action = "approve"
	ActionGrade   Action = "grade"
)

// Resource classes protected by the policy engine. These mirror the REST
// resource collections exposed by the application.
const (
	ResourceCourses     = "courses"
	ResourceModules     = "modules"
	ResourceMaterials   = "materials"
	ResourceAssignments = "assignments"
	ResourceSubmissions = "submissions"
	ResourceEnrollments = "enrollments"
	ResourceUsers       = "users"
	ResourcePermissions = "permissions"
	ResourceSettings    = "settings"
)

// ActionSet is the set of actions a PolicyTable entry permits.
type ActionSet map[Action]struct{}

// Allow builds the permitted action set for one PolicyTable entry.
func Allow(list ...Action) ActionSet {
	s := make(ActionSet, len(list))
	for _, a := range list {
		s[a] = struct{}{}
	}
	return s
}

func (s ActionSet) has(a Action) bool {
	_, ok := s[a]
	return ok
}

// PolicyTable maps (role, resource class) to the set of permitted actions.
// Anything absent is denied.
type PolicyTable map[UserRole]map[string]ActionSet

// DefaultPolicyTable returns the policy shipped with the module. Ownership
// rules (self-enrollment, grading own assignments) are layered on top via
// predicates, never encoded here.
func DefaultPolicyTable() PolicyTable {
	readOnly := Allow(ActionRead)
	fullCRUD := Allow(ActionCreate, ActionRead, ActionUpdate, ActionDelete)

	return PolicyTable{
		RoleStudent: {
			ResourceCourses:     readOnly,
			ResourceModules:     readOnly,
			ResourceMaterials:   readOnly,
			ResourceAssignments: readOnly,
			ResourceSubmissions: Allow(ActionCreate, ActionRead, ActionUpdate),
			ResourceEnrollments: Allow(ActionCreate, ActionRead),
		},
		RoleGuardian: {
			ResourceCourses:     readOnly,
			ResourceModules:     readOnly,
			ResourceMaterials:   readOnly,
			ResourceAssignments: readOnly,
			ResourceSubmissions: readOnly,
			ResourceEnrollments: readOnly,
		},
		RoleTeacher: {
			ResourceCourses:     Allow(ActionCreate, ActionRead, ActionUpdate),
			ResourceModules:     fullCRUD,
			ResourceMaterials:   fullCRUD,
			ResourceAssignments: fullCRUD,
			ResourceSubmissions: Allow(ActionRead, ActionGrade),
			ResourceEnrollments: Allow(ActionRead, ActionUpdate),
			ResourceUsers:       readOnly,
		},
		RoleAdmin: {
			ResourceCourses:     fullCRUD,
			ResourceModules:     fullCRUD,
			ResourceMaterials:   fullCRUD,
			ResourceAssignments: fullCRUD,
			ResourceSubmissions: Allow(ActionRead, ActionDelete, ActionGrade),
			ResourceEnrollments: Allow(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAssign),
			ResourceUsers:       Allow(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAssign, ActionApprove),
			ResourcePermissions: Allow(ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAssign),
			ResourceSettings:    Allow(ActionRead, ActionUpdate),
		},
		// RoleSuperAdmin bypasses the table, see Engine.Authorize.
	}
}

// OwnershipPredicate is an additional check evaluated only after the coarse
// role check passes. Returning a non-nil error denies the request.
type OwnershipPredicate func(ctx context.Context, claims AuthClaims) error

// OwnedBy denies unless the claims subject matches ownerID. Used for
// self-enrollment and similar "only as yourself" rules.
func OwnedBy(ownerID string) OwnershipPredicate {
	return func(_ context.Context, claims AuthClaims) error {
		if claims.UserID() == ownerID {
			return nil
		}
		return denyf(claims, "", "", "resource is owned by another account")
	}
}

// AuthorizeOption customizes a single Authorize evaluation.
type AuthorizeOption func(*authorizeOptions)

type authorizeOptions struct {
	predicates []OwnershipPredicate
}

// WithOwnership layers an ownership predicate on top of the role check.
func WithOwnership(pred OwnershipPredicate) AuthorizeOption {
	return func(o *authorizeOptions) {
		if pred != nil {
			o.predicates = append(o.predicates, pred)
		}
	}
}

// Engine is the table-driven RBAC policy engine. It is stateless: every
// Authorize call evaluates the table and predicates fresh, decisions are
// never cached across requests.
type Engine struct {
	table  PolicyTable
	logger Logger
}

// EngineOption customizes Engine construction.
type EngineOption func(*Engine)

// WithPolicyTable replaces the default policy table.
func WithPolicyTable(table PolicyTable) EngineOption {
	return func(e *Engine) {
		if table != nil {
			e.table = table
		}
	}
}

// WithEngineLogger overrides the engine logger.
func WithEngineLogger(logger Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewPolicyEngine returns an Engine backed by the default table.
func NewPolicyEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		table:  DefaultPolicyTable(),
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Authorize decides whether the authenticated identity behind claims may
// perform action on the resource class. nil means allow. The two failure
// modes stay distinguishable: ErrUnauthenticated when there is no usable
// session, ErrForbidden when the session lacks privilege.
func (e *Engine) Authorize(ctx context.Context, claims AuthClaims, resource string, action Action, opts ...AuthorizeOption) error {
	if claims == nil || claims.UserID() == "" {
		return ErrUnauthenticated
	}

	options := &authorizeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	role := UserRole(claims.Role())

	if role != RoleSuperAdmin {
		if !e.roleCan(role, resource, action) {
			e.logger.Debug("authorize deny role=%s resource=%s action=%s", role, resource, action)
			return denyf(claims, resource, action, "role does not permit this action")
		}
	}

	for _, pred := range options.predicates {
		if err := pred(ctx, claims); err != nil {
			return err
		}
	}

	return nil
}

// RoleCan evaluates the coarse table entry only, without ownership layering.
// Unknown roles, resource classes, and actions deny.
func (e *Engine) RoleCan(role UserRole, resource string, action Action) bool {
	if role == RoleSuperAdmin {
		return true
	}
	return e.roleCan(role, resource, action)
}

func (e *Engine) roleCan(role UserRole, resource string, action Action) bool {
	perResource, ok := e.table[role]
	if !ok {
		return false
	}

	allowed, ok := perResource[resource]
	if !ok {
		return false
	}

	switch action {
	case ActionAssign:
		// derived: assigning requires the ability to shape the resource
		return allowed.has(ActionAssign) || allowed.has(ActionUpdate) || allowed.has(ActionCreate)
	case ActionApprove:
		return allowed.has(ActionApprove) || allowed.has(ActionUpdate) || allowed.has(ActionDelete)
	default:
		return allowed.has(action)
	}
}

func denyf(claims AuthClaims, resource string, action Action, reason string) error {
	meta := map[string]any{"reason": reason}
	if claims != nil {
		meta["role"] = claims.Role()
	}
	if resource != "" {
		meta["resource"] = resource
	}
	if action != "" {
		meta["action"] = string(action)
	}

	clone := ErrForbidden.Clone()
	if clone == nil {
		return ErrForbidden
	}
	clone.Source = ErrForbidden
	return clone.WithMetadata(meta)
}

// defaultEngine backs the claims-level Can* helpers so tokens can answer
// permission questions without an Engine instance in hand.
var defaultEngine = NewPolicyEngine()
