package credentials

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeConflict           = "CONFLICT"
	TextCodeInvalidOrExpired   = "INVALID_OR_EXPIRED"
	TextCodeUnauthorized       = "UNAUTHORIZED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeInvalidClient      = "INVALID_CLIENT"
	TextCodeInvalidRedirect    = "INVALID_REDIRECT"
	TextCodeInvalidGrant       = "INVALID_GRANT"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeStaleSecret        = "STALE_SECRET"
	TextCodeServerError        = "SERVER_ERROR"
)

// Sentinels are returned as is so callers can match them with errors.Is.
// Never call a With* builder on them, build a wrapped error instead.
var (
	ErrValidation = goerrors.New("invalid request", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)

	ErrTokenRequired = goerrors.New("token is required", goerrors.CategoryValidation).
				WithTextCode(TextCodeValidation).
				WithCode(goerrors.CodeBadRequest)

	ErrEmailAndOTPRequired = goerrors.New("email and OTP are required", goerrors.CategoryValidation).
				WithTextCode(TextCodeValidation).
				WithCode(goerrors.CodeBadRequest)

	ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
				WithTextCode(TextCodeValidation).
				WithCode(goerrors.CodeBadRequest)

	ErrUnsupportedResponseType = goerrors.New("unsupported response type", goerrors.CategoryValidation).
					WithTextCode("UNSUPPORTED_RESPONSE_TYPE").
					WithCode(goerrors.CodeBadRequest)

	ErrUnsupportedGrantType = goerrors.New("unsupported grant type", goerrors.CategoryValidation).
				WithTextCode("UNSUPPORTED_GRANT_TYPE").
				WithCode(goerrors.CodeBadRequest)

	ErrNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeNotFound).
			WithCode(goerrors.CodeNotFound)

	ErrPrincipalNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
				WithTextCode(TextCodeNotFound).
				WithCode(goerrors.CodeNotFound)

	ErrAlreadyVerified = goerrors.New("email already verified", goerrors.CategoryConflict).
				WithTextCode(TextCodeConflict).
				WithCode(goerrors.CodeConflict)

	ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
			WithTextCode(TextCodeConflict).
			WithCode(goerrors.CodeConflict)

	ErrInvalidOrExpired = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidOrExpired).
				WithCode(goerrors.CodeBadRequest)

	ErrUnauthorized = goerrors.New("authentication required", goerrors.CategoryAuth).
			WithTextCode(TextCodeUnauthorized).
			WithCode(goerrors.CodeUnauthorized)

	ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	ErrForbidden = goerrors.New("operation not allowed", goerrors.CategoryAuthz).
			WithTextCode(TextCodeForbidden).
			WithCode(goerrors.CodeForbidden)

	ErrEmailNotVerified = goerrors.New("please verify your email first", goerrors.CategoryAuthz).
				WithTextCode(TextCodeForbidden).
				WithCode(goerrors.CodeForbidden)

	ErrInvalidClient = goerrors.New("invalid client", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidClient).
				WithCode(goerrors.CodeUnauthorized)

	ErrInvalidRedirect = goerrors.New("invalid redirect uri", goerrors.CategoryValidation).
				WithTextCode(TextCodeInvalidRedirect).
				WithCode(goerrors.CodeBadRequest)

	ErrInvalidGrant = goerrors.New("invalid or expired authorization code", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidGrant).
			WithCode(goerrors.CodeBadRequest)

	ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeUnauthorized).
			WithCode(goerrors.CodeUnauthorized)

	ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
				WithTextCode(TextCodeUnauthorized).
				WithCode(goerrors.CodeUnauthorized)

	// ErrStaleSecret is returned by the store when a conditional save finds
	// the slot no longer holds the expected value.
	ErrStaleSecret = goerrors.New("secret no longer pending", goerrors.CategoryConflict).
			WithTextCode(TextCodeStaleSecret).
			WithCode(goerrors.CodeConflict)

	ErrServer = goerrors.New("internal server error", goerrors.CategoryInternal).
			WithTextCode(TextCodeServerError).
			WithCode(goerrors.CodeInternal)
)

// ErrorKind returns the taxonomy text code for err. Errors that do not carry
// one are reported as server errors.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return TextCodeServerError
	}

	if richErr.TextCode != "" {
		return richErr.TextCode
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return TextCodeValidation
	case goerrors.CategoryNotFound:
		return TextCodeNotFound
	case goerrors.CategoryConflict:
		return TextCodeConflict
	case goerrors.CategoryAuth:
		return TextCodeUnauthorized
	case goerrors.CategoryAuthz:
		return TextCodeForbidden
	}
	return TextCodeServerError
}

// IsKind reports whether err belongs to the given taxonomy text code.
func IsKind(err error, code string) bool {
	return ErrorKind(err) == code
}

func internalError(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr.Category != goerrors.CategoryInternal {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodeServerError).
		WithCode(goerrors.CodeInternal)
}

func validationError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}
