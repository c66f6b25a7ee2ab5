package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tvshelf.org/internal/audit"
	"tvshelf.org/internal/auth"
	"tvshelf.org/internal/catalog"
	"tvshelf.org/internal/obs"
)

// Error codes carried in the "error" field of every error body.
const (
	codeInvalidInput       = "INVALID_INPUT"
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeTokenExpired       = "TOKEN_EXPIRED"
	codeTokenInvalid       = "TOKEN_INVALID"
	codeUnauthenticated    = "UNAUTHENTICATED"
	codeUnauthorized       = "UNAUTHORIZED"
	codeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	codeRoleNotFound       = "ROLE_NOT_FOUND"
	codeRoleNotHeld        = "ROLE_NOT_HELD"
	codeLastRole           = "LAST_ROLE"
	codeDuplicateAccount   = "DUPLICATE_ACCOUNT"
	codeShowNotFound       = "SHOW_NOT_FOUND"
	codeShowConflict       = "SHOW_CONFLICT"
	codeAlreadyLinked      = "ALREADY_LINKED"
	codeNotLinked          = "NOT_LINKED"
	codeNotFound           = "NOT_FOUND"
	codeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	codePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	codeRateLimited        = "RATE_LIMITED"
	codeStoreFailure       = "STORE_FAILURE"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Message:   msg,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable is checked in order; the first errors.Is match wins.
var errorTable = []errorMapping{
	{auth.ErrTokenExpired, http.StatusUnauthorized, codeTokenExpired},
	{auth.ErrTokenInvalid, http.StatusUnauthorized, codeTokenInvalid},
	{auth.ErrTokenMalformed, http.StatusUnauthorized, codeUnauthenticated},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, codeUnauthenticated},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, codeInvalidCredentials},
	{auth.ErrUnauthorized, http.StatusForbidden, codeUnauthorized},
	{auth.ErrAccountNotFound, http.StatusNotFound, codeAccountNotFound},
	{auth.ErrRoleNotHeld, http.StatusNotFound, codeRoleNotHeld},
	{auth.ErrNotLinked, http.StatusNotFound, codeNotLinked},
	{catalog.ErrNotFound, http.StatusNotFound, codeShowNotFound},
	{auth.ErrRoleNotFound, http.StatusBadRequest, codeRoleNotFound},
	{auth.ErrDuplicateAccount, http.StatusBadRequest, codeDuplicateAccount},
	{auth.ErrLastRole, http.StatusBadRequest, codeLastRole},
	{auth.ErrAlreadyLinked, http.StatusBadRequest, codeAlreadyLinked},
	{auth.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput},
	{catalog.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput},
	{catalog.ErrConflict, http.StatusConflict, codeShowConflict},
}

// classify maps a service error to its HTTP status and code. Unknown errors are store failures.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, codeStoreFailure
}

// writeServiceError answers with the mapped status. Store failures are logged with the
// request id and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		obs.Logger().WithError(err).WithFields(map[string]any{
			"request_id": audit.RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("request_failed")
		writeError(w, r, status, code, "internal server error")
		return
	}
	writeError(w, r, status, code, err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// writeDecodeError answers a body that failed to decode.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, codeInvalidInput, err.Error())
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found: "+strings.TrimSpace(r.URL.Path))
}
