package credentials

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// UpdateProfileMessage changes the editable profile fields of the caller.
// Empty fields are left untouched. The email address cannot be changed here.
type UpdateProfileMessage struct {
	Subject          *Subject `json:"-"`
	Name             string   `json:"name"`
	DateOfBirth      string   `json:"dateOfBirth"`
	EmergencyContact string   `json:"emergencyRecoveryContact"`
	OnResponse       func(p *Principal)
}

func (m UpdateProfileMessage) Type() string { return "credentials.profile.update" }

func (m UpdateProfileMessage) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&m.Name, validation.Length(1, 200)),
	}
	if m.Subject != nil && m.Subject.Kind == KindAdmin {
		rules = append(rules,
			validation.Field(&m.DateOfBirth, validation.Empty.Error("is not available for admins")),
			validation.Field(&m.EmergencyContact, validation.Empty.Error("is not available for admins")),
		)
	} else {
		rules = append(rules,
			validation.Field(&m.DateOfBirth, validation.Date(dateOfBirthLayout)),
			validation.Field(&m.EmergencyContact, validation.By(validPhoneNumber)),
		)
	}
	return validation.ValidateStruct(&m, rules...)
}

func (m UpdateProfileMessage) isEmpty() bool {
	return strings.TrimSpace(m.Name) == "" && m.DateOfBirth == "" && m.EmergencyContact == ""
}

// ProfileHandler updates and deletes the accounts of authenticated callers.
type ProfileHandler struct {
	store    PrincipalStore
	activity ActivitySink
	logger   Logger
}

func NewProfileHandler(store PrincipalStore) *ProfileHandler {
	return &ProfileHandler{
		store:    store,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *ProfileHandler) WithActivitySink(sink ActivitySink) *ProfileHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ProfileHandler) WithLogger(logger Logger) *ProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Load returns the caller's principal.
func (h *ProfileHandler) Load(ctx context.Context, subject *Subject) (*Principal, error) {
	if subject == nil || subject.ID == "" {
		return nil, ErrUnauthorized
	}
	p, err := h.store.FindByID(ctx, subject.Kind, subject.ID)
	if err != nil {
		if goerrors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, richOrInternal(err, "failed to load profile")
	}
	return p, nil
}

func (h *ProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during profile update")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if event.Subject == nil {
		return ErrUnauthorized
	}
	if event.isEmpty() {
		return validationError(validation.Errors{
			"name": validation.NewError("validation_required", "at least one field is required"),
		}, "nothing to update")
	}
	if err := event.Validate(); err != nil {
		return validationError(err, "invalid profile")
	}

	p, err := h.Load(ctx, event.Subject)
	if err != nil {
		return err
	}

	var columns []string
	if name := strings.TrimSpace(event.Name); name != "" {
		p.Name = name
		columns = append(columns, "name")
	}
	if event.DateOfBirth != "" {
		dob, err := time.Parse(dateOfBirthLayout, event.DateOfBirth)
		if err != nil {
			return validationError(err, "invalid date of birth")
		}
		p.DateOfBirth = &dob
		columns = append(columns, "date_of_birth")
	}
	if event.EmergencyContact != "" {
		formatted, err := formatPhoneNumber(event.EmergencyContact)
		if err != nil {
			return validationError(err, "invalid emergency contact")
		}
		p.EmergencyContact = formatted
		columns = append(columns, "emergency_contact")
	}

	if err := h.store.Save(ctx, p, WithColumns(columns...)); err != nil {
		return richOrInternal(err, "failed to update profile")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:   ActivityEventProfileUpdated,
		PrincipalID: p.ID.String(),
		Kind:        p.Kind,
		Metadata:    map[string]any{"fields": columns},
	})

	if event.OnResponse != nil {
		event.OnResponse(p)
	}
	return nil
}

// Delete removes the caller's account with its sessions and codes.
func (h *ProfileHandler) Delete(ctx context.Context, subject *Subject) error {
	if subject == nil || subject.ID == "" {
		return ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := h.store.DeletePrincipal(ctx, subject.Kind, subject.ID); err != nil {
		if goerrors.Is(err, ErrPrincipalNotFound) {
			return ErrUnauthorized
		}
		return richOrInternal(err, "failed to delete account")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:   ActivityEventAccountDeleted,
		PrincipalID: subject.ID,
		Kind:        subject.Kind,
	})
	return nil
}
