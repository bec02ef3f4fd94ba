package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	textCodeInvalidTransition = "INVALID_APPROVAL_TRANSITION"
	textCodeTerminalState     = "TERMINAL_APPROVAL_STATE"
)

// ErrInvalidTransition is returned when a requested approval change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid approval transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move away from a terminal status (rejected).
var ErrTerminalState = goerrors.New("approval state is terminal", goerrors.CategoryConflict).
	WithTextCode(textCodeTerminalState).
	WithCode(goerrors.CodeConflict)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  ApprovalStatus
	To    ApprovalStatus
	Meta  TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes approval machine behavior.
type TransitionOption func(*transitionOptions)

// ApprovalMachine defines approval lifecycle operations for users.
type ApprovalMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target ApprovalStatus, opts ...TransitionOption) (*User, error)
	CurrentStatus(user *User) ApprovalStatus
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// ApprovalMachineOption customizes approval machine construction.
type ApprovalMachineOption func(*approvalMachine)

// WithApprovalClock injects a custom clock (useful for tests).
func WithApprovalClock(clock func() time.Time) ApprovalMachineOption {
	return func(sm *approvalMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithApprovalActivitySink sets the ActivitySink used to publish lifecycle events.
func WithApprovalActivitySink(sink ActivitySink) ApprovalMachineOption {
	return func(sm *approvalMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithApprovalHookErrorHandler overrides how hook failures are propagated.
// Provide a handler to convert hook errors into domain-specific responses,
// otherwise the default handler panics with guidance for developers.
func WithApprovalHookErrorHandler(handler HookErrorHandler) ApprovalMachineOption {
	return func(sm *approvalMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithApprovalLogger overrides the logger used for sink failures.
func WithApprovalLogger(logger Logger) ApprovalMachineOption {
	return func(sm *approvalMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithForceTransition bypasses validation rules (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// WithDecisionTime overrides the timestamp recorded when the decision lands.
func WithDecisionTime(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.decisionTime = &t
	}
}

// NewApprovalMachine returns the default implementation backed by the provided repository.
func NewApprovalMachine(users Users, opts ...ApprovalMachineOption) ApprovalMachine {
	sm := &approvalMachine{
		users: users,
		transitions: map[ApprovalStatus]map[ApprovalStatus]struct{}{
			ApprovalPending: {
				ApprovalApproved: {},
				ApprovalRejected: {},
			},
			ApprovalApproved: {
				ApprovalRejected: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return defaultHookErrorHandler(ctx, phase, err, tc)
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type approvalMachine struct {
	users            Users
	transitions      map[ApprovalStatus]map[ApprovalStatus]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata     TransitionMetadata
	force        bool
	beforeHooks  []TransitionHook
	afterHooks   []TransitionHook
	decisionTime *time.Time
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *approvalMachine) Transition(ctx context.Context, actor ActorRef, user *User, target ApprovalStatus, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}

	user.EnsureApprovalStatus()
	from := user.ApprovalStatus
	if target == "" {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target status is empty",
		})
	}

	if from == target {
		return user, nil
	}

	options := sm.buildTransitionOptions(opts...)

	if from == ApprovalRejected && !options.force {
		return nil, ErrTerminalState.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if !options.force && !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	ctxData := TransitionContext{
		Actor: actor,
		User:  user,
		From:  from,
		To:    target,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	approvalOpts, decidedAt, decidedBy := sm.buildDecisionOptions(actor, target, options)

	updated, err := sm.users.UpdateApprovalStatus(ctx, user.ID, target, approvalOpts...)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(user, updated, target, decidedAt, decidedBy)

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventApprovalChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(ctxData.Meta),
	})

	return user, nil
}

func (sm *approvalMachine) CurrentStatus(user *User) ApprovalStatus {
	if user == nil {
		return ""
	}
	user.EnsureApprovalStatus()
	return user.ApprovalStatus
}

func (sm *approvalMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *approvalMachine) canTransition(from, to ApprovalStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *approvalMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

// buildDecisionOptions records who decided and when for any move out of
// pending. Actor IDs that are not UUIDs (e.g. "system") leave decided_by
// unset.
func (sm *approvalMachine) buildDecisionOptions(actor ActorRef, to ApprovalStatus, opts *transitionOptions) ([]ApprovalUpdateOption, *time.Time, *uuid.UUID) {
	approvalOpts := []ApprovalUpdateOption{}

	var decidedAt *time.Time
	switch {
	case opts.decisionTime != nil:
		decidedAt = opts.decisionTime
	default:
		now := sm.now()
		decidedAt = &now
	}
	approvalOpts = append(approvalOpts, WithDecidedAt(decidedAt))

	var decidedBy *uuid.UUID
	if actor.ID != "" {
		if id, err := uuid.Parse(actor.ID); err == nil {
			decidedBy = &id
		}
	}
	if decidedBy != nil {
		approvalOpts = append(approvalOpts, WithDecidedBy(decidedBy))
	}

	return approvalOpts, decidedAt, decidedBy
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	panic(fmt.Sprintf(
		"go-lms-auth: %s transition hook failed: %v\nUserID: %s from=%s to=%s reason=%s\nProvide auth.WithApprovalHookErrorHandler to customize error handling in production.",
		phase,
		err,
		tc.User.ID,
		tc.From,
		tc.To,
		tc.Meta.Reason,
	))
}

func (sm *approvalMachine) applyUpdates(user, updated *User, target ApprovalStatus, decidedAt *time.Time, decidedBy *uuid.UUID) {
	if updated != nil {
		if updated.ApprovalStatus != "" {
			user.ApprovalStatus = updated.ApprovalStatus
		} else {
			user.ApprovalStatus = target
		}
		user.DecidedAt = updated.DecidedAt
		user.ApprovedBy = updated.ApprovedBy
		return
	}

	user.ApprovalStatus = target
	user.DecidedAt = decidedAt
	user.ApprovedBy = decidedBy
}

func (sm *approvalMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("approval machine activity sink error: %v", err)
	}
}

func (sm *approvalMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
