package auth

import (
	"context"
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-lms-auth/middleware/jwtware"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator wires the Authenticator into go-router handlers. The
// API is bearer-token only, clients hold the pair and send the access token
// in the Authorization header.
type RouteAuthenticator struct {
	auth             Authenticator
	cfg              Config
	approvals        ApprovalChecker
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

// WithApprovalChecker enables the bounded-staleness approval re-check on
// protected routes.
func (a *RouteAuthenticator) WithApprovalChecker(checker ApprovalChecker) *RouteAuthenticator {
	a.approvals = checker
	return a
}

// ProtectedRoute guards a route with JWT validation, the approval gate, and
// any policy options carried by guards.
func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return jwtware.New(a.middlewareConfig(cfg, errorHandler))(hf)
	}
}

// RequirePermission guards a route on a single resource/action grant from
// the policy table, e.g. RequirePermission(cfg, handler, ResourceCourses, ActionUpdate).
func (a *RouteAuthenticator) RequirePermission(cfg Config, errorHandler func(router.Context, error) error, resource string, action Action) router.MiddlewareFunc {
	mwCfg := a.middlewareConfig(cfg, errorHandler)
	mwCfg.Resource = resource
	mwCfg.Action = string(action)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return jwtware.New(mwCfg)(hf)
	}
}

// RequireMinimumRole guards a route on the role hierarchy, e.g. admin pages.
func (a *RouteAuthenticator) RequireMinimumRole(cfg Config, errorHandler func(router.Context, error) error, minRole UserRole) router.MiddlewareFunc {
	mwCfg := a.middlewareConfig(cfg, errorHandler)
	mwCfg.MinimumRole = string(minRole)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return jwtware.New(mwCfg)(hf)
	}
}

func (a *RouteAuthenticator) middlewareConfig(cfg Config, errorHandler func(router.Context, error) error) jwtware.Config {
	mwCfg := jwtware.Config{
		ErrorHandler: errorHandler,
		SigningKey: jwtware.SigningKey{
			Key:    []byte(cfg.GetSigningKey()),
			JWTAlg: cfg.GetSigningMethod(),
		},
		AuthScheme:      cfg.GetAuthScheme(),
		ContextKey:      cfg.GetContextKey(),
		TokenLookup:     cfg.GetTokenLookup(),
		TokenValidator:  a.tokenValidator(),
		ContextEnricher: ContextEnricherAdapter,
	}

	if a.approvals != nil {
		checker := a.approvals
		mwCfg.ApprovalChecker = func(ctx context.Context, userID string) (string, error) {
			return checker.CheckApproval(ctx, userID)
		}
	}

	return mwCfg
}

// tokenValidator adapts the Authenticator's session validation to the
// middleware's claims interface.
func (a *RouteAuthenticator) tokenValidator() jwtware.TokenValidator {
	return routeTokenValidator{auth: a.auth}
}

type routeTokenValidator struct {
	auth Authenticator
}

func (v routeTokenValidator) Validate(tokenString string) (jwtware.AuthClaims, error) {
	if ts, ok := v.auth.(interface{ TokenService() TokenService }); ok {
		claims, err := ts.TokenService().Validate(tokenString)
		if err != nil {
			return nil, err
		}
		return claims, nil
	}

	session, err := v.auth.SessionFromToken(tokenString)
	if err != nil {
		return nil, err
	}

	if claims, ok := session.(jwtware.AuthClaims); ok {
		return claims, nil
	}

	return nil, ErrUnableToDecodeSession
}

func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) (*TokenPair, error) {
	pair, err := a.auth.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return nil, err
	}

	return pair, nil
}

func (a *RouteAuthenticator) Refresh(ctx router.Context, refreshToken string) (*TokenPair, error) {
	pair, err := a.auth.Refresh(ctx.Context(), refreshToken)
	if err != nil {
		a.Logger.Error("Refresh error: %s", err)
		return nil, err
	}

	return pair, nil
}

func (a *RouteAuthenticator) Logout(ctx router.Context, refreshToken string) error {
	return a.auth.Logout(ctx.Context(), refreshToken)
}

func (a *RouteAuthenticator) Impersonate(c router.Context, identifier string) (*TokenPair, error) {
	pair, err := a.auth.Impersonate(c.Context(), identifier)
	if err != nil {
		a.Logger.Error("Impersonate authentication error: %v", err)
		return nil, err
	}

	return pair, nil
}

func (a *RouteAuthenticator) MakeRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding: %s", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error on %s: %s (%s)",
		c.OriginalURL(),
		richErr.Message,
		richErr.TextCode,
	)

	return respondWithError(c, richErr)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return respondWithError(c, richErr)
	}
}

// respondWithError renders a rich error as the wire format every handler
// shares: a status derived from the error code and a stable error envelope.
func respondWithError(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	return c.JSON(status, router.ViewContext{
		"error": router.ViewContext{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
			"category":  string(richErr.Category),
		},
	})
}
