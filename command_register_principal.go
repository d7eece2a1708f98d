package credentials

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse emergency contacts given without a
// country prefix.
var DefaultPhoneRegion = "US"

const dateOfBirthLayout = "2006-01-02"

type RegisterPrincipalMessage struct {
	Kind             PrincipalKind `json:"-"`
	Name             string        `json:"name"`
	Email            string        `json:"email"`
	Password         string        `json:"password"`
	ConfirmPassword  string        `json:"confirmPassword"`
	Role             AdminRole     `json:"role"`
	DateOfBirth      string        `json:"dateOfBirth"`
	EmergencyContact string        `json:"emergencyRecoveryContact"`
	RegistrationKey  string        `json:"adminKey"`
	UseHashid        bool          `json:"-"`
	OnResponse       func(resp *RegisterPrincipalResponse)
}

func (e RegisterPrincipalMessage) Type() string { return "credentials.principal.register" }

// Validate will validate the payload
func (e RegisterPrincipalMessage) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&e.Kind, validation.Required, validation.In(KindUser, KindAdmin)),
		validation.Field(&e.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(
			&e.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(e.Password)),
		),
		validation.Field(&e.DateOfBirth, validation.Date(dateOfBirthLayout)),
		validation.Field(&e.EmergencyContact, validation.By(validPhoneNumber)),
	}
	if e.Kind == KindAdmin {
		rules = append(rules, validation.Field(&e.Role, validation.In(RoleAdmin, RoleSuperAdmin, RoleModerator)))
	}
	return validation.ValidateStruct(&e, rules...)
}

type RegisterPrincipalResponse struct {
	Principal    *Principal
	Verification *RequestResult
}

// RegisterPrincipalHandler creates principals and starts email verification.
type RegisterPrincipalHandler struct {
	store           PrincipalStore
	hasher          *Hasher
	machine         *VerificationMachine
	registrationKey string
	activity        ActivitySink
	logger          Logger
}

// NewRegisterPrincipalHandler creates a handler. Admin registration is
// refused unless a registration key is configured.
func NewRegisterPrincipalHandler(store PrincipalStore, hasher *Hasher, machine *VerificationMachine, registrationKey string) *RegisterPrincipalHandler {
	if hasher == nil {
		hasher = NewHasher()
	}
	return &RegisterPrincipalHandler{
		store:           store,
		hasher:          hasher,
		machine:         machine,
		registrationKey: registrationKey,
		activity:        noopActivitySink{},
		logger:          defLogger{},
	}
}

func (h *RegisterPrincipalHandler) WithActivitySink(sink ActivitySink) *RegisterPrincipalHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterPrincipalHandler) WithLogger(logger Logger) *RegisterPrincipalHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterPrincipalHandler) Execute(ctx context.Context, event RegisterPrincipalMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during principal registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterPrincipalHandler) execute(ctx context.Context, event RegisterPrincipalMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := event.Validate(); err != nil {
		return validationError(err, "invalid registration")
	}

	if event.Kind == KindAdmin && !h.acceptsRegistrationKey(event.RegistrationKey) {
		return ErrForbidden
	}

	hash, err := h.hasher.HashPassword(ctx, event.Password)
	if err != nil {
		return internalError(err, "failed to hash password")
	}

	p := &Principal{
		Kind:         event.Kind,
		Name:         strings.TrimSpace(event.Name),
		Email:        NormalizeEmail(event.Email),
		PasswordHash: hash,
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(p.Email); err == nil {
			p.ID = id
		}
	}

	switch event.Kind {
	case KindAdmin:
		p.Role = event.Role
		if p.Role == "" {
			p.Role = RoleAdmin
		}
	case KindUser:
		if event.DateOfBirth != "" {
			if dob, err := time.Parse(dateOfBirthLayout, event.DateOfBirth); err == nil {
				p.DateOfBirth = &dob
			}
		}
		if event.EmergencyContact != "" {
			p.EmergencyContact, _ = formatPhoneNumber(event.EmergencyContact)
		}
	}

	created, err := h.store.CreatePrincipal(ctx, p)
	if err != nil {
		return richOrInternal(err, "could not create principal")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:   ActivityEventRegistered,
		PrincipalID: created.ID.String(),
		Kind:        created.Kind,
	})

	resp := &RegisterPrincipalResponse{Principal: created}

	if h.machine != nil {
		verification, err := h.machine.Request(ctx, created.Kind, OpEmailVerification, created.Email)
		if err != nil {
			h.logger.Error("registration: could not issue email verification for %s: %v", created.ID, err)
		} else {
			resp.Verification = verification
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *RegisterPrincipalHandler) acceptsRegistrationKey(key string) bool {
	if h.registrationKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(h.registrationKey), []byte(key)) == 1
}

// ValidateStringEquals returns a rule that checks the value equals str
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func validPhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := formatPhoneNumber(s)
	return err
}

func formatPhoneNumber(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
