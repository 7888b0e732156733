package app

import (
	"errors"
	"net/http"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/auth"
)

var kindStatus = map[apperr.Kind]int{
	apperr.Unauthenticated:       http.StatusUnauthorized,
	apperr.InvalidArgument:       http.StatusUnprocessableEntity,
	apperr.NotFound:              http.StatusNotFound,
	apperr.InvalidState:          http.StatusConflict,
	apperr.Conflict:              http.StatusConflict,
	apperr.DependencyUnavailable: http.StatusServiceUnavailable,
}

// mapError turns any error into the status and body fields of the error
// response. Messages of unclassified errors are not exposed.
func mapError(err error) (status int, code, message string, details any) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if status, ok := kindStatus[appErr.Kind]; ok {
			return status, string(appErr.Kind), appErr.Message, appErr.Details
		}
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, string(apperr.Unauthenticated), "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
