package credentials

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Controller exposes the credential lifecycle over HTTP.
type Controller struct {
	Debug  bool
	Logger Logger

	auth       *RouteAuthenticator
	auther     *Auther
	broker     *AuthorizationBroker
	register   *RegisterPrincipalHandler
	request    *RequestSecretHandler
	confirm    *ConfirmSecretHandler
	twoFactor  *ToggleTwoFactorHandler
	profile    *ProfileHandler
	sessions   *SessionManager
	apiVersion string
}

// ControllerOptions groups the collaborators the controller dispatches to.
type ControllerOptions struct {
	Auth      *RouteAuthenticator
	Auther    *Auther
	Broker    *AuthorizationBroker
	Register  *RegisterPrincipalHandler
	Request   *RequestSecretHandler
	Confirm   *ConfirmSecretHandler
	TwoFactor *ToggleTwoFactorHandler
	Profile   *ProfileHandler
	Sessions  *SessionManager
	Logger    Logger
}

func NewController(cfg Config, opts ControllerOptions) *Controller {
	version := strings.TrimPrefix(cfg.GetAPIVersion(), "v")
	if version == "" {
		version = "1"
	}
	c := &Controller{
		Logger:     defLogger{},
		auth:       opts.Auth,
		auther:     opts.Auther,
		broker:     opts.Broker,
		register:   opts.Register,
		request:    opts.Request,
		confirm:    opts.Confirm,
		twoFactor:  opts.TwoFactor,
		profile:    opts.Profile,
		sessions:   opts.Sessions,
		apiVersion: version,
	}
	if opts.Logger != nil {
		c.Logger = opts.Logger
	}
	return c
}

// RegisterCredentialRoutes mounts every route of ctrl under /api/v{version}.
func RegisterCredentialRoutes[T any](app router.Router[T], ctrl *Controller) {
	api := app.Group(fmt.Sprintf("/api/v%s", ctrl.apiVersion))

	for _, kind := range []PrincipalKind{KindUser, KindAdmin} {
		g := api.Group("/" + string(kind))
		session := ctrl.auth.ProtectedRoute(kind)
		name := func(route string) string {
			return string(kind) + "." + route
		}

		g.Post("/register", ctrl.Register(kind)).SetName(name("register"))
		g.Post("/login", ctrl.Login(kind)).SetName(name("login"))
		g.Post("/logout", ctrl.Logout).SetName(name("logout"))
		g.Get("/validate-token", ctrl.ValidateToken(kind)).SetName(name("validate-token"))

		g.Post("/resend-verification", ctrl.RequestSecret(kind, OpEmailVerification, "Verification email sent")).
			SetName(name("resend-verification"))
		g.Get("/verify-email", ctrl.VerifyEmail(kind)).SetName(name("verify-email"))

		g.Post("/forgot-password", ctrl.RequestSecret(kind, OpPasswordReset, "Password reset email sent")).
			SetName(name("forgot-password"))
		g.Post("/reset-password", ctrl.ResetPassword(kind)).SetName(name("reset-password"))

		g.Post("/send-otp", ctrl.RequestSecret(kind, OpTwoFactorOTP, "OTP sent to your email")).
			SetName(name("send-otp"))
		g.Post("/send-twofactor-otp", ctrl.RequestSecret(kind, OpTwoFactorOTP, "OTP sent to your email")).
			SetName(name("send-twofactor-otp"))
		g.Post("/verify-otp", ctrl.VerifyOTP(kind)).SetName(name("verify-otp"))

		g.Post("/send-login-otp", ctrl.RequestSecret(kind, OpLoginOTP, "Login OTP sent to your email")).
			SetName(name("send-login-otp"))
		g.Post("/verify-login-otp", ctrl.VerifyLoginOTP(kind)).SetName(name("verify-login-otp"))

		g.Post("/enable-two-factor", ctrl.ToggleTwoFactor(true), session).SetName(name("enable-two-factor"))
		g.Post("/disable-two-factor", ctrl.ToggleTwoFactor(false), session).SetName(name("disable-two-factor"))

		g.Get("/profile", ctrl.Profile, session).SetName(name("profile"))
		g.Put("/update-profile", ctrl.UpdateProfile, session).SetName(name("update-profile"))
		g.Delete("/delete-account", ctrl.DeleteAccount, session).SetName(name("delete-account"))
		g.Get("/sessions", ctrl.Sessions, session).SetName(name("sessions"))

		oidc := api.Group("/oidc/" + string(kind))
		oidc.Get("/authorize", ctrl.Authorize, session).SetName(name("oidc.authorize"))
		oidc.Post("/token", ctrl.Token(kind)).SetName(name("oidc.token"))
		oidc.Get("/userinfo", ctrl.UserInfo(kind)).SetName(name("oidc.userinfo"))
	}
}

func (ctrl *Controller) fail(c router.Context, err error) error {
	return ctrl.auth.ErrorHandler(c, err)
}

type registerPayload struct {
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Password         string    `json:"password"`
	ConfirmPassword  string    `json:"confirmPassword"`
	Role             AdminRole `json:"role"`
	DateOfBirth      string    `json:"dateOfBirth"`
	EmergencyContact string    `json:"emergencyRecoveryContact"`
	AdminKey         string    `json:"adminKey"`
}

func (ctrl *Controller) Register(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		var payload registerPayload
		if err := c.Bind(&payload); err != nil {
			return ctrl.fail(c, validationError(err, "invalid request body"))
		}

		var resp *RegisterPrincipalResponse
		err := ctrl.register.Execute(c.Context(), RegisterPrincipalMessage{
			Kind:             kind,
			Name:             payload.Name,
			Email:            payload.Email,
			Password:         payload.Password,
			ConfirmPassword:  payload.ConfirmPassword,
			Role:             payload.Role,
			DateOfBirth:      payload.DateOfBirth,
			EmergencyContact: payload.EmergencyContact,
			RegistrationKey:  payload.AdminKey,
			OnResponse: func(r *RegisterPrincipalResponse) {
				resp = r
			},
		})
		if err != nil {
			return ctrl.fail(c, err)
		}

		message := "Registration successful, please verify your email"
		if resp.Verification == nil || resp.Verification.DeliveryErr != nil {
			message = "Registration successful, verification email could not be sent"
		}

		profile := resp.Principal.Profile()
		if ctrl.Debug {
			ctrl.Logger.Debug("registered %s: %s", kind, print.MaybePrettyJSON(profile))
		}
		return ok(c, http.StatusCreated, profile, message)
	}
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionData struct {
	Token string  `json:"token"`
	User  Profile `json:"user"`
}

func (ctrl *Controller) Login(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		var payload loginPayload
		if err := c.Bind(&payload); err != nil {
			return ctrl.fail(c, validationError(err, "invalid request body"))
		}
		if payload.Email == "" || payload.Password == "" {
			return ctrl.fail(c, ErrValidation)
		}

		res, err := ctrl.auther.Login(c.Context(), kind, payload.Email, payload.Password, sessionMetadata(c))
		if err != nil {
			return ctrl.fail(c, err)
		}

		ctrl.auth.SetSessionCookie(c, res.Token)
		return ok(c, http.StatusOK, sessionData{Token: res.Token, User: res.Principal.Profile()}, "Login successful")
	}
}

func (ctrl *Controller) Logout(c router.Context) error {
	ctrl.auth.ClearSessionCookie(c)
	return ok(c, http.StatusOK, nil, "Logged out successfully")
}

type emailPayload struct {
	Email string `json:"email"`
}

// RequestSecret issues a secret of op and hands it to the notifier.
func (ctrl *Controller) RequestSecret(kind PrincipalKind, op OperationKind, message string) router.HandlerFunc {
	return func(c router.Context) error {
		var payload emailPayload
		if err := c.Bind(&payload); err != nil {
			return ctrl.fail(c, validationError(err, "invalid request body"))
		}

		var res *RequestResult
		err := ctrl.request.Execute(c.Context(), RequestSecretMessage{
			Kind:      kind,
			Operation: op,
			Email:     payload.Email,
			OnResponse: func(r *RequestResult) {
				res = r
			},
		})
		if err != nil {
			return ctrl.fail(c, err)
		}

		if res.DeliveryErr != nil {
			ctrl.Logger.Error("delivery of %s for %s failed: %v", op, res.Principal.ID, res.DeliveryErr)
			return writeJSON(c, http.StatusBadGateway, Response{
				Success: false,
				Message: "Could not deliver the message, please try again",
			})
		}

		return ok(c, http.StatusOK, map[string]any{"expiresAt": res.ExpiresAt}, message)
	}
}

func (ctrl *Controller) confirmSecret(c router.Context, msg ConfirmSecretMessage) (*ConfirmResult, error) {
	var res *ConfirmResult
	msg.OnResponse = func(r *ConfirmResult) {
		res = r
	}
	if err := ctrl.confirm.Execute(c.Context(), msg); err != nil {
		return nil, err
	}
	return res, nil
}

func (ctrl *Controller) VerifyEmail(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		_, err := ctrl.confirmSecret(c, ConfirmSecretMessage{
			Kind:      kind,
			Operation: OpEmailVerification,
			Secret:    c.Query("token", ""),
		})
		if err != nil {
			return ctrl.fail(c, err)
		}
		return ok(c, http.StatusOK, nil, "Email verified successfully")
	}
}

type resetPayload struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (ctrl *Controller) ResetPassword(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		var payload resetPayload
		if err := c.Bind(&payload); err != nil {
			return ctrl.fail(c, validationError(err, "invalid request body"))
		}

		_, err := ctrl.confirmSecret(c, ConfirmSecretMessage{
			Kind:            kind,
			Operation:       OpPasswordReset,
			Secret:          payload.Token,
			NewPassword:     payload.NewPassword,
			ConfirmPassword: payload.ConfirmPassword,
		})
		if err != nil {
			return ctrl.fail(c, err)
		}
		return ok(c, http.StatusOK, nil, "Password reset successful")
	}
}

type otpPayload struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (ctrl *Controller) VerifyOTP(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		var payload otpPayload
		if err := c.Bind(&payload); err != nil {
			return ctrl.fail(c, validationError(err, "invalid request body"))
		}

		_, err := ctrl.confirmSecret(c, ConfirmSecretMessage{
			Kind:      kind,
			Operation: OpTwoFactorOTP,
			Email:     payload.Email,
			Secret:    payload.OTP,
		})
		if err != nil {
			return ctrl.fail(c, err)
		}
		return ok(c, http.StatusOK, nil, "OTP verified successfully")
	}
}

func (ctrl *Controller) VerifyLoginOTP(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		var payload otpPayload
		if err := c.Bind(&payload); err != nil {
			return ctrl.fail(c, validationError(err, "invalid request body"))
		}

		res, err := ctrl.confirmSecret(c, ConfirmSecretMessage{
			Kind:      kind,
			Operation: OpLoginOTP,
			Email:     payload.Email,
			Secret:    payload.OTP,
			Metadata:  sessionMetadata(c),
		})
		if err != nil {
			return ctrl.fail(c, err)
		}

		ctrl.auth.SetSessionCookie(c, res.Token)
		return ok(c, http.StatusOK, sessionData{Token: res.Token, User: res.Principal.Profile()}, "Login successful")
	}
}

func (ctrl *Controller) ToggleTwoFactor(enabled bool) router.HandlerFunc {
	return func(c router.Context) error {
		var updated *Principal
		err := ctrl.twoFactor.Execute(c.Context(), ToggleTwoFactorMessage{
			Subject: ctrl.auth.Subject(c),
			Enabled: enabled,
			OnResponse: func(p *Principal) {
				updated = p
			},
		})
		if err != nil {
			return ctrl.fail(c, err)
		}

		message := "Two-factor authentication disabled"
		if enabled {
			message = "Two-factor authentication enabled"
		}
		return ok(c, http.StatusOK, map[string]any{"twoFactorEnabled": updated.TwoFactorEnabled}, message)
	}
}

func (ctrl *Controller) Authorize(c router.Context) error {
	res, err := ctrl.broker.Authorize(c.Context(), AuthorizeRequest{
		ClientID:     c.Query("client_id", ""),
		RedirectURI:  c.Query("redirect_uri", ""),
		ResponseType: c.Query("response_type", ""),
		State:        c.Query("state", ""),
		Subject:      ctrl.auth.Subject(c),
	})
	if err != nil {
		return ctrl.fail(c, err)
	}
	return c.Redirect(res.RedirectURL, http.StatusFound)
}

type tokenPayload struct {
	GrantType    string `json:"grant_type" form:"grant_type"`
	Code         string `json:"code" form:"code"`
	RedirectURI  string `json:"redirect_uri" form:"redirect_uri"`
	ClientID     string `json:"client_id" form:"client_id"`
	ClientSecret string `json:"client_secret" form:"client_secret"`
}

func (ctrl *Controller) Token(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		var payload tokenPayload
		if err := c.Bind(&payload); err != nil {
			return ctrl.fail(c, validationError(err, "invalid request body"))
		}

		res, err := ctrl.broker.Token(c.Context(), TokenRequest{
			Code:         payload.Code,
			ClientID:     payload.ClientID,
			ClientSecret: payload.ClientSecret,
			RedirectURI:  payload.RedirectURI,
			GrantType:    payload.GrantType,
			Kind:         kind,
		})
		if err != nil {
			return ctrl.fail(c, err)
		}
		return ok(c, http.StatusOK, res, "Token issued")
	}
}

func (ctrl *Controller) UserInfo(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		bearer := c.Header(router.HeaderAuthorization)
		if len(bearer) < 7 || !strings.EqualFold(bearer[:7], "bearer ") {
			return ctrl.fail(c, ErrUnauthorized)
		}

		info, err := ctrl.broker.UserInfo(c.Context(), kind, strings.TrimSpace(bearer[7:]))
		if err != nil {
			return ctrl.fail(c, err)
		}
		return ok(c, http.StatusOK, info, "")
	}
}

type validateTokenData struct {
	Valid     bool      `json:"valid"`
	User      Profile   `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ValidateToken reports whether the request carries a live session for kind.
func (ctrl *Controller) ValidateToken(kind PrincipalKind) router.HandlerFunc {
	return func(c router.Context) error {
		raw := ctrl.auth.SessionToken(c)
		if raw == "" {
			return ctrl.fail(c, ErrUnauthorized)
		}

		claims, err := ctrl.auther.SessionFromToken(kind, raw)
		if err != nil {
			ctrl.Logger.Debug("validate-token rejected: %v", err)
			return ctrl.fail(c, ErrUnauthorized)
		}

		p, err := ctrl.profile.Load(c.Context(), SubjectFromClaims(claims))
		if err != nil {
			return ctrl.fail(c, err)
		}
		return ok(c, http.StatusOK, validateTokenData{
			Valid:     true,
			User:      p.Profile(),
			ExpiresAt: claims.Expires(),
		}, "Token is valid")
	}
}

type profileData struct {
	Profile
	IsVerified       bool                `json:"isVerified"`
	TwoFactorEnabled bool                `json:"twoFactorEnabled"`
	Capabilities     []Capability        `json:"capabilities,omitempty"`
	Permissions      map[Capability]bool `json:"permissions,omitempty"`
}

func newProfileData(p *Principal) profileData {
	return profileData{
		Profile:          p.Profile(),
		IsVerified:       p.IsVerified,
		TwoFactorEnabled: p.TwoFactorEnabled,
		Capabilities:     p.EffectiveCapabilities(),
		Permissions:      p.Permissions(),
	}
}

func (ctrl *Controller) Profile(c router.Context) error {
	p, err := ctrl.profile.Load(c.Context(), ctrl.auth.Subject(c))
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ok(c, http.StatusOK, newProfileData(p), "")
}

type updateProfilePayload struct {
	Name             string `json:"name"`
	DateOfBirth      string `json:"dateOfBirth"`
	EmergencyContact string `json:"emergencyRecoveryContact"`
}

func (ctrl *Controller) UpdateProfile(c router.Context) error {
	var payload updateProfilePayload
	if err := c.Bind(&payload); err != nil {
		return ctrl.fail(c, validationError(err, "invalid request body"))
	}

	var updated *Principal
	err := ctrl.profile.Execute(c.Context(), UpdateProfileMessage{
		Subject:          ctrl.auth.Subject(c),
		Name:             payload.Name,
		DateOfBirth:      payload.DateOfBirth,
		EmergencyContact: payload.EmergencyContact,
		OnResponse: func(p *Principal) {
			updated = p
		},
	})
	if err != nil {
		return ctrl.fail(c, err)
	}

	if ctrl.Debug {
		ctrl.Logger.Debug("profile updated: %s", print.MaybePrettyJSON(updated.Profile()))
	}
	return ok(c, http.StatusOK, newProfileData(updated), "Profile updated successfully")
}

func (ctrl *Controller) DeleteAccount(c router.Context) error {
	if err := ctrl.profile.Delete(c.Context(), ctrl.auth.Subject(c)); err != nil {
		return ctrl.fail(c, err)
	}
	ctrl.auth.ClearSessionCookie(c)
	return ok(c, http.StatusOK, nil, "Account deleted successfully")
}

// Sessions lists the sessions recorded for the caller.
func (ctrl *Controller) Sessions(c router.Context) error {
	subject := ctrl.auth.Subject(c)
	if subject == nil {
		return ctrl.fail(c, ErrUnauthorized)
	}
	sessions, err := ctrl.sessions.List(c.Context(), subject.Kind, subject.ID)
	if err != nil {
		return ctrl.fail(c, err)
	}
	return ok(c, http.StatusOK, sessions, "")
}

func sessionMetadata(c router.Context) SessionMetadata {
	return SessionMetadata{
		IPAddress: c.IP(),
		UserAgent: c.Header("User-Agent"),
	}
}
