package credentials

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PrincipalKind tags the two account families.
type PrincipalKind string

const (
	KindUser  PrincipalKind = "user"
	KindAdmin PrincipalKind = "admin"
)

// ParsePrincipalKind maps a route role segment to a kind.
func ParsePrincipalKind(s string) (PrincipalKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindUser):
		return KindUser, true
	case string(KindAdmin):
		return KindAdmin, true
	}
	return "", false
}

// OperationKind names a secret slot.
type OperationKind string

const (
	OpEmailVerification OperationKind = "email_verification"
	OpPasswordReset     OperationKind = "password_reset"
	OpTwoFactorOTP      OperationKind = "two_factor_otp"
	OpLoginOTP          OperationKind = "login_otp"
)

// IsValid reports whether op is a known operation kind.
func (op OperationKind) IsValid() bool {
	_, ok := slotColumnsByOp[op]
	return ok
}

// UsesOTP reports whether the operation delivers a numeric code rather than
// a link token.
func (op OperationKind) UsesOTP() bool {
	return op == OpTwoFactorOTP || op == OpLoginOTP
}

type slotColumns struct {
	token   string
	expires string
}

var slotColumnsByOp = map[OperationKind]slotColumns{
	OpEmailVerification: {"email_verification_token", "email_verification_expires"},
	OpPasswordReset:     {"password_reset_token", "password_reset_expires"},
	OpTwoFactorOTP:      {"two_factor_otp_hash", "two_factor_otp_expires"},
	OpLoginOTP:          {"login_otp_hash", "login_otp_expires"},
}

// SecretSlot is a pending secret: its stored form and expiry.
type SecretSlot struct {
	Value     string
	ExpiresAt *time.Time
}

// IsEmpty reports whether nothing is pending.
func (s SecretSlot) IsEmpty() bool {
	return s.Value == "" || s.ExpiresAt == nil
}

// IsLive reports whether the slot holds a secret that has not expired at now.
func (s SecretSlot) IsLive(now time.Time) bool {
	return !s.IsEmpty() && s.ExpiresAt.After(now)
}

// Principal is a user or admin account.
type Principal struct {
	bun.BaseModel `bun:"table:principals,alias:pr"`

	ID               uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Kind             PrincipalKind `bun:"kind,notnull" json:"kind"`
	Name             string        `bun:"name,notnull" json:"name"`
	Email            string        `bun:"email,notnull" json:"email"`
	PasswordHash     string        `bun:"password_hash" json:"-"`
	IsVerified       bool          `bun:"is_verified,notnull" json:"is_verified"`
	TwoFactorEnabled bool          `bun:"two_factor_enabled,notnull" json:"two_factor_enabled"`
	DateOfBirth      *time.Time    `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	EmergencyContact string        `bun:"emergency_contact,nullzero" json:"emergency_contact,omitempty"`
	Role             AdminRole     `bun:"role,nullzero" json:"role,omitempty"`
	Capabilities     []Capability  `bun:"capabilities" json:"capabilities,omitempty"`

	EmailVerificationToken   string     `bun:"email_verification_token,nullzero" json:"-"`
	EmailVerificationExpires *time.Time `bun:"email_verification_expires,nullzero" json:"-"`
	PasswordResetToken       string     `bun:"password_reset_token,nullzero" json:"-"`
	PasswordResetExpires     *time.Time `bun:"password_reset_expires,nullzero" json:"-"`
	TwoFactorOTPHash         string     `bun:"two_factor_otp_hash,nullzero" json:"-"`
	TwoFactorOTPExpires      *time.Time `bun:"two_factor_otp_expires,nullzero" json:"-"`
	LoginOTPHash             string     `bun:"login_otp_hash,nullzero" json:"-"`
	LoginOTPExpires          *time.Time `bun:"login_otp_expires,nullzero" json:"-"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Slot returns the pending secret for op.
func (p *Principal) Slot(op OperationKind) SecretSlot {
	value, expires := p.slotFields(op)
	if value == nil {
		return SecretSlot{}
	}
	return SecretSlot{Value: *value, ExpiresAt: *expires}
}

// SetSlot stores value and expiry together, replacing any pending secret.
func (p *Principal) SetSlot(op OperationKind, value string, expiresAt time.Time) {
	v, e := p.slotFields(op)
	if v == nil {
		return
	}
	exp := expiresAt.UTC()
	*v = value
	*e = &exp
}

// ClearSlot removes value and expiry together.
func (p *Principal) ClearSlot(op OperationKind) {
	v, e := p.slotFields(op)
	if v == nil {
		return
	}
	*v = ""
	*e = nil
}

func (p *Principal) slotFields(op OperationKind) (*string, **time.Time) {
	switch op {
	case OpEmailVerification:
		return &p.EmailVerificationToken, &p.EmailVerificationExpires
	case OpPasswordReset:
		return &p.PasswordResetToken, &p.PasswordResetExpires
	case OpTwoFactorOTP:
		return &p.TwoFactorOTPHash, &p.TwoFactorOTPExpires
	case OpLoginOTP:
		return &p.LoginOTPHash, &p.LoginOTPExpires
	}
	return nil, nil
}

// Profile is the public projection of a principal.
type Profile struct {
	ID               string     `json:"_id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Role             string     `json:"role,omitempty"`
	DateOfBirth      *time.Time `json:"dateOfBirth,omitempty"`
	EmergencyContact string     `json:"emergencyRecoveryContact,omitempty"`
}

// Profile returns the fields safe to hand back to callers.
func (p *Principal) Profile() Profile {
	profile := Profile{
		ID:    p.ID.String(),
		Name:  p.Name,
		Email: p.Email,
	}
	if p.Kind == KindAdmin {
		profile.Role = string(p.Role)
		return profile
	}
	profile.DateOfBirth = p.DateOfBirth
	profile.EmergencyContact = p.EmergencyContact
	return profile
}

// Client is a registered relying party.
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:cl"`

	ID               uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	ClientID         string     `bun:"client_id,notnull,unique" json:"client_id"`
	ClientSecretHash string     `bun:"client_secret_hash,notnull" json:"-"`
	Name             string     `bun:"name,notnull" json:"name"`
	Description      string     `bun:"description" json:"description,omitempty"`
	LogoURL          string     `bun:"logo_url" json:"logo_url,omitempty"`
	RedirectURIs     []string   `bun:"redirect_uris" json:"redirect_uris"`
	Active           bool       `bun:"active,notnull" json:"active"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AllowsRedirect reports whether uri is one of the registered redirect URIs.
// Matching is exact.
func (c *Client) AllowsRedirect(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AuthorizationCode binds a one time code to a client and a principal.
type AuthorizationCode struct {
	bun.BaseModel `bun:"table:authorization_codes,alias:ac"`

	ID            uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	CodeHash      string        `bun:"code_hash,notnull,unique" json:"-"`
	ClientID      string        `bun:"client_id,notnull" json:"client_id"`
	PrincipalID   uuid.UUID     `bun:"principal_id,notnull,type:uuid" json:"principal_id"`
	PrincipalKind PrincipalKind `bun:"principal_kind,notnull" json:"principal_kind"`
	RedirectURI   string        `bun:"redirect_uri,notnull" json:"redirect_uri"`
	IssuedAt      time.Time     `bun:"issued_at,notnull" json:"issued_at"`
	ExpiresAt     time.Time     `bun:"expires_at,notnull" json:"expires_at"`
	ConsumedAt    *time.Time    `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
}

// Consumed reports whether the code was already exchanged.
func (a *AuthorizationCode) Consumed() bool {
	return a.ConsumedAt != nil
}

// SessionChannel records how a bearer token was obtained.
type SessionChannel string

const (
	ChannelPassword SessionChannel = "password"
	ChannelLoginOTP SessionChannel = "login_otp"
)

// Session is an audit row written whenever a bearer token is handed out.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`

	ID            uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	PrincipalID   uuid.UUID      `bun:"principal_id,notnull,type:uuid" json:"principal_id"`
	PrincipalKind PrincipalKind  `bun:"principal_kind,notnull" json:"principal_kind"`
	TokenHash     string         `bun:"token_hash,notnull" json:"-"`
	TokenID       string         `bun:"token_id" json:"token_id,omitempty"`
	Channel       SessionChannel `bun:"channel,notnull" json:"channel"`
	IPAddress     string         `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string         `bun:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     *time.Time     `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// SessionMetadata is the request information captured with a session.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
