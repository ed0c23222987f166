package types

import (
	"errors"

	appErr "github.com/pvarki/takbackend/pkg/errors"
)

func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	var e *appErr.AppError
	if errors.As(err, &e) {
		return &APIError{Code: string(e.Code), Message: e.Message, Meta: e.Meta}
	}
	return &APIError{Code: string(appErr.CodeUnknown), Message: err.Error()}
}
