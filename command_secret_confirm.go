package credentials

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type ConfirmSecretMessage struct {
	Kind            PrincipalKind   `json:"-"`
	Operation       OperationKind   `json:"-"`
	Email           string          `json:"email" example:"pepe.rone@example.com" doc:"Principal email, OTP kinds only"`
	Secret          string          `json:"secret" example:"123456" doc:"Token or OTP"`
	NewPassword     string          `json:"newPassword" doc:"New password, password reset only"`
	ConfirmPassword string          `json:"confirmPassword" doc:"Confirmation, password reset only"`
	Metadata        SessionMetadata `json:"-"`
	OnResponse      func(res *ConfirmResult)
}

func (m ConfirmSecretMessage) Type() string { return "credentials.secret.confirm" }

// Validate checks formats only. Missing values are reported by the machine
// so every caller gets the same messages.
func (m ConfirmSecretMessage) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&m.Kind, validation.Required, validation.In(KindUser, KindAdmin)),
		validation.Field(&m.Operation, validation.Required, validation.By(validOperation)),
		validation.Field(&m.Email, is.Email),
	}
	if m.Operation.UsesOTP() {
		rules = append(rules, validation.Field(&m.Secret, is.Digit, validation.Length(6, 6)))
	}
	if m.Operation == OpPasswordReset {
		rules = append(rules, validation.Field(&m.NewPassword, validation.Length(8, 128)))
	}
	return validation.ValidateStruct(&m, rules...)
}

type ConfirmSecretHandler struct {
	machine *VerificationMachine
	logger  Logger
}

// NewConfirmSecretHandler creates a handler with sane defaults.
func NewConfirmSecretHandler(machine *VerificationMachine) *ConfirmSecretHandler {
	return &ConfirmSecretHandler{
		machine: machine,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmSecretHandler) WithLogger(logger Logger) *ConfirmSecretHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmSecretHandler) Execute(ctx context.Context, event ConfirmSecretMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secret confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmSecretHandler) execute(ctx context.Context, event ConfirmSecretMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if event.Operation == OpPasswordReset && event.NewPassword != event.ConfirmPassword {
		return ErrPasswordMismatch
	}

	if err := event.Validate(); err != nil {
		return validationError(err, "invalid secret confirmation")
	}

	res, err := h.machine.Confirm(ctx, ConfirmInput{
		Kind:            event.Kind,
		Operation:       event.Operation,
		Email:           event.Email,
		Secret:          event.Secret,
		NewPassword:     event.NewPassword,
		ConfirmPassword: event.ConfirmPassword,
		Metadata:        event.Metadata,
	})
	if err != nil {
		h.logger.Debug("secret confirmation %s failed: %v", event.Operation, err)
		return richOrInternal(err, "failed to confirm secret")
	}

	if event.OnResponse != nil {
		event.OnResponse(res)
	}
	return nil
}
