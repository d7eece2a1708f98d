package credentials

import (
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-credentials/middleware/jwtware"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	defaultCookieName = "token"
	cookieMaxAge      = 3600
)

// Response is the JSON envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
}

// RouteAuthenticator owns the session cookie and the session middleware.
type RouteAuthenticator struct {
	cfg              Config
	tokens           *TokenService
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewHTTPAuthenticator(tokens *TokenService, cfg Config) *RouteAuthenticator {
	a := &RouteAuthenticator{
		cfg:    cfg,
		tokens: tokens,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a
}

// WithLogger overrides the logger.
func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a *RouteAuthenticator) cookieName() string {
	if name := a.cfg.GetCookieName(); name != "" {
		return name
	}
	return defaultCookieName
}

func (a *RouteAuthenticator) contextKey() string {
	if key := a.cfg.GetContextKey(); key != "" {
		return key
	}
	return "user"
}

// ProtectedRoute accepts only session tokens signed with the key of kind,
// read from the session cookie or the bearer header. Access tokens minted
// for relying parties are rejected here.
func (a *RouteAuthenticator) ProtectedRoute(kind PrincipalKind) router.MiddlewareFunc {
	validator := a.tokens.ValidatorFor(kind)
	return jwtware.New(jwtware.Config{
		ErrorHandler: a.AuthErrorHandler,
		ContextKey:   a.contextKey(),
		TokenLookup:  "cookie:" + a.cookieName() + ",header:" + router.HeaderAuthorization,
		AuthScheme:   "Bearer",
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
			claims, err := validator.Validate(raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		ValidationListeners: []jwtware.ValidationListener{
			func(c router.Context, claims jwtware.AuthClaims) error {
				if ac, ok := claims.(AuthClaims); ok {
					c.SetContext(WithClaimsContext(c.Context(), ac))
				}
				return nil
			},
		},
	})
}

// Subject returns the caller authenticated by ProtectedRoute.
func (a *RouteAuthenticator) Subject(c router.Context) *Subject {
	return SubjectFromContext(c, a.contextKey())
}

// SessionToken returns the raw session token the request carries, cookie
// first, then the bearer header.
func (a *RouteAuthenticator) SessionToken(c router.Context) string {
	extractors := jwtware.GetExtractors("cookie:"+a.cookieName()+",header:"+router.HeaderAuthorization, "Bearer")
	raw, err := jwtware.ExtractRawToken(c, extractors)
	if err != nil {
		return ""
	}
	return raw
}

// SetSessionCookie stores token in the session cookie.
func (a *RouteAuthenticator) SetSessionCookie(c router.Context, token string) {
	c.Cookie(&router.Cookie{
		Name:     a.cookieName(),
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(cookieMaxAge * time.Second),
		HTTPOnly: true,
		Secure:   a.cfg.IsProduction(),
		SameSite: "Strict",
	})
}

// ClearSessionCookie expires the session cookie.
func (a *RouteAuthenticator) ClearSessionCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.IsProduction(),
		SameSite: "Strict",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	a.Logger.Debug("session rejected on %s: %v", c.Path(), err)
	return writeJSON(c, http.StatusUnauthorized, Response{
		Success: false,
		Message: "Authentication required",
	})
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	status, resp := a.errorResponse(c.Method(), c.Path(), err)
	return writeJSON(c, status, resp)
}

// FiberErrorHandler answers errors raised below the router, such as
// unmatched routes, with the same envelope.
func (a *RouteAuthenticator) FiberErrorHandler(c *fiber.Ctx, err error) error {
	status, resp := a.errorResponse(c.Method(), c.Path(), err)
	return c.Status(status).JSON(resp)
}

func (a *RouteAuthenticator) errorResponse(method, path string, err error) (int, Response) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, Response{Success: false, Message: fiberErr.Message}
	}

	status := StatusFor(err)

	if status >= http.StatusInternalServerError {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && len(richErr.Metadata) > 0 {
			a.Logger.Error("%s %s failed: %v %s", method, path, err, print.MaybePrettyJSON(richErr.Metadata))
		} else {
			a.Logger.Error("%s %s failed: %v", method, path, err)
		}
		return status, Response{
			Success: false,
			Message: "Internal server error",
		}
	}

	resp := Response{Success: false, Message: publicMessage(err)}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		resp.Data = fieldErrs
	}
	return status, resp
}

// StatusFor maps an error to its HTTP status through the taxonomy text code.
func StatusFor(err error) int {
	switch ErrorKind(err) {
	case TextCodeValidation, TextCodeInvalidOrExpired, TextCodeInvalidRedirect, TextCodeInvalidGrant,
		"UNSUPPORTED_RESPONSE_TYPE", "UNSUPPORTED_GRANT_TYPE":
		return http.StatusBadRequest
	case TextCodeUnauthorized, TextCodeInvalidClient, TextCodeInvalidCredentials:
		return http.StatusUnauthorized
	case TextCodeForbidden:
		return http.StatusForbidden
	case TextCodeNotFound:
		return http.StatusNotFound
	case TextCodeConflict:
		return http.StatusConflict
	case TextCodeStaleSecret:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func publicMessage(err error) string {
	if IsKind(err, TextCodeStaleSecret) {
		return ErrInvalidOrExpired.Message
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return "Request failed"
}

func writeJSON(c router.Context, status int, resp Response) error {
	return c.JSON(status, resp)
}

func ok(c router.Context, status int, data any, message string) error {
	return writeJSON(c, status, Response{Success: true, Data: data, Message: message})
}
