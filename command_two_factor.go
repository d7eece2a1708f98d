package credentials

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

type ToggleTwoFactorMessage struct {
	Subject    *Subject
	Enabled    bool
	OnResponse func(p *Principal)
}

func (m ToggleTwoFactorMessage) Type() string { return "credentials.two_factor.toggle" }

type ToggleTwoFactorHandler struct {
	machine *VerificationMachine
}

func NewToggleTwoFactorHandler(machine *VerificationMachine) *ToggleTwoFactorHandler {
	return &ToggleTwoFactorHandler{machine: machine}
}

func (h *ToggleTwoFactorHandler) Execute(ctx context.Context, event ToggleTwoFactorMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during two factor toggle")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	p, err := h.machine.SetTwoFactor(ctx, event.Subject, event.Enabled)
	if err != nil {
		return richOrInternal(err, "failed to toggle two factor")
	}

	if event.OnResponse != nil {
		event.OnResponse(p)
	}
	return nil
}
