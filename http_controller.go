package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

type Middleware interface {
	Impersonate(c router.Context, identifier string) (*TokenPair, error)
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// GetRouterSession builds a SessionObject from the claims the JWT middleware
// stored in the router context.
func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	claims, ok := GetRouterClaims(c, key)
	if !ok {
		return nil, ErrUnableToDecodeSession
	}

	return sessionFromAuthClaims(claims)
}

// RegisterAuthRoutes mounts the token lifecycle endpoints. Admin decision
// endpoints assume the caller mounted the JWT middleware upstream, the
// handlers re-check the policy table themselves.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("auth.register")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")

	app.
		Post(controller.Routes.Refresh, controller.RefreshPost).
		SetName("auth.refresh")

	app.
		Post(controller.Routes.Logout, controller.LogoutPost).
		SetName("auth.logout")

	app.
		Post(fmt.Sprintf("%s/:id/approve", controller.Routes.Users), controller.ApproveUser).
		SetName("auth.users.approve")

	app.
		Post(fmt.Sprintf("%s/:id/reject", controller.Routes.Users), controller.RejectUser).
		SetName("auth.users.reject")

	app.
		Post(fmt.Sprintf("%s/:id/role", controller.Routes.Users), controller.UpdateUserRole).
		SetName("auth.users.role")
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Refresh  string
	Register string
	Users    string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Auther       HTTPAuthenticator
	Approvals    *CachedApprovalChecker
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: respondWithError,
		Routes: &AuthControllerRoutes{
			Login:    "/auth/login",
			Logout:   "/auth/logout",
			Refresh:  "/auth/refresh",
			Register: "/auth/register",
			Users:    "/auth/users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	return c
}

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerRepo sets the repository manager.
func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

// WithControllerAuther sets the HTTP authenticator.
func WithControllerAuther(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

// WithControllerApprovalChecker wires the cached checker so approval
// decisions invalidate stale cache entries immediately.
func WithControllerApprovalChecker(checker *CachedApprovalChecker) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Approvals = checker
		return c
	}
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.ErrorHandler(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	pair, err := a.Auther.Login(ctx, payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

// RefreshRequest carries the refresh token being exchanged.
type RefreshRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (a *AuthController) RefreshPost(ctx router.Context) error {
	payload := new(RefreshRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("refresh parse payload: %v", err)
		return a.ErrorHandler(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(ctx, err)
	}

	pair, err := a.Auther.Refresh(ctx, payload.RefreshToken)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	payload := new(RefreshRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("logout parse payload: %v", err)
		return a.ErrorHandler(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(ctx, err)
	}

	if err := a.Auther.Logout(ctx, payload.RefreshToken); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Status(router.StatusNoContent).SendString("")
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Role            string `form:"role" json:"role"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload. Admin roles cannot be requested at
// registration time, they are granted by an existing admin.
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Role, validation.In(
			RoleStudent,
			RoleTeacher,
			RoleGuardian,
		)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: %v", err)
		return a.ErrorHandler(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: %v", err)
		return a.renderValidationError(ctx, err)
	}

	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Role:      payload.Role,
		Password:  payload.Password,
	}

	registerUser := NewRegisterUserHandler(a.Repo)
	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, router.ViewContext{
		"status":  string(ApprovalPending),
		"message": "Registration received, pending approval",
	})
}

// ApprovalDecisionPayload carries the optional reason for a decision.
type ApprovalDecisionPayload struct {
	Reason string `form:"reason" json:"reason"`
}

func (a *AuthController) ApproveUser(ctx router.Context) error {
	return a.decideApproval(ctx, ApprovalApproved)
}

func (a *AuthController) RejectUser(ctx router.Context) error {
	return a.decideApproval(ctx, ApprovalRejected)
}

func (a *AuthController) decideApproval(ctx router.Context, target ApprovalStatus) error {
	claims, err := a.requireClaims(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := defaultEngine.Authorize(ctx.Context(), claims, ResourceUsers, ActionApprove); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ApprovalDecisionPayload)
	// the body is optional, a bare decision is valid
	_ = ctx.Bind(payload)

	userID := ctx.Param("id")
	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), userID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	actor := ActorRef{ID: claims.UserID(), Type: "user"}

	opts := []TransitionOption{}
	if payload.Reason != "" {
		opts = append(opts, WithTransitionReason(payload.Reason))
	}

	switch target {
	case ApprovalApproved:
		user, err = a.Repo.Users().Approve(ctx.Context(), actor, user, opts...)
	case ApprovalRejected:
		user, err = a.Repo.Users().Reject(ctx.Context(), actor, user, opts...)
	}

	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if a.Approvals != nil {
		a.Approvals.Invalidate(user.ID.String())
	}

	return ctx.JSON(router.StatusOK, user)
}

// UpdateRolePayload carries a role change request.
type UpdateRolePayload struct {
	Role string `form:"role" json:"role"`
}

// Validate will validate the payload
func (r UpdateRolePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(
			RoleStudent,
			RoleTeacher,
			RoleGuardian,
			RoleAdmin,
			RoleSuperAdmin,
		)),
	)
}

func (a *AuthController) UpdateUserRole(ctx router.Context) error {
	claims, err := a.requireClaims(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := defaultEngine.Authorize(ctx.Context(), claims, ResourceUsers, ActionAssign); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(UpdateRolePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, ErrUnableToParseData)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(ctx, err)
	}

	userID := ctx.Param("id")
	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), userID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, err = a.Repo.Users().UpdateRole(ctx.Context(), user.ID, UserRole(payload.Role))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

func (a *AuthController) requireClaims(ctx router.Context) (AuthClaims, error) {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

func (a *AuthController) renderValidationError(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, router.ViewContext{
		"error": router.ViewContext{
			"message":  "Validation failed",
			"category": "validation",
		},
		"validation": FormatValidationErrorToMap(err),
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map suitable for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
