package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"masskribbl/internal/pkg/logx"
)

// CustomError is the application error carrying a business code and an HTTP status.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing description.
	Message string

	// Status is the HTTP status used when the error is written as a response.
	Status int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Is reports whether target is a CustomError with the same code, so callers can
// use errors.Is(err, errs.NewError(errs.ErrRoomIsFull)).
func (e *CustomError) Is(target error) bool {
	var other *CustomError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError builds a *CustomError from a registered code. details are printf arguments
// for templates containing verbs; for ErrUnknown the first detail may be the cause and
// is logged. Unknown codes degrade to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	switch {
	case len(details) == 0:
	case code == ErrUnknown:
		if originalErr, ok := details[0].(error); ok {
			logx.Error(originalErr, "Handling ErrUnknown with underlying error")
		}
	case strings.Contains(customErr.Message, "%"):
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	default:
		logx.Warn("Details provided for error, but message template has no formatting placeholders. Details ignored.",
			"code", code)
	}

	return &customErr
}

// Code extracts the business code from err, or ErrUnknown when err is not a CustomError.
func Code(err error) int {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code
	}
	return ErrUnknown
}
