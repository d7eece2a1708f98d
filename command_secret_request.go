package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const commandTimeout = 10 * time.Second

type RequestSecretMessage struct {
	Kind       PrincipalKind `json:"-"`
	Operation  OperationKind `json:"-"`
	Email      string        `json:"email" example:"pepe.rone@example.com" doc:"Principal email"`
	OnResponse func(res *RequestResult)
}

func (m RequestSecretMessage) Type() string { return "credentials.secret.request" }

// Validate checks the shape of the message
func (m RequestSecretMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Kind, validation.Required, validation.In(KindUser, KindAdmin)),
		validation.Field(&m.Operation, validation.Required, validation.By(validOperation)),
		validation.Field(&m.Email, validation.Required, is.Email),
	)
}

type RequestSecretHandler struct {
	machine *VerificationMachine
	logger  Logger
}

// NewRequestSecretHandler creates a handler with sane defaults.
func NewRequestSecretHandler(machine *VerificationMachine) *RequestSecretHandler {
	return &RequestSecretHandler{
		machine: machine,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RequestSecretHandler) WithLogger(logger Logger) *RequestSecretHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestSecretHandler) Execute(ctx context.Context, event RequestSecretMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during secret request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestSecretHandler) execute(ctx context.Context, event RequestSecretMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := event.Validate(); err != nil {
		return validationError(err, "invalid secret request")
	}

	res, err := h.machine.Request(ctx, event.Kind, event.Operation, event.Email)
	if err != nil {
		h.logger.Debug("secret request %s failed: %v", event.Operation, err)
		return richOrInternal(err, "failed to request secret")
	}

	if event.OnResponse != nil {
		event.OnResponse(res)
	}
	return nil
}

func validOperation(value any) error {
	op, _ := value.(OperationKind)
	if !op.IsValid() {
		return goerrors.New("unknown operation", goerrors.CategoryValidation)
	}
	return nil
}

// richOrInternal keeps taxonomy errors as they are and wraps anything else.
func richOrInternal(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return internalError(err, message)
}
