// Package audit records security-relevant actions on the shared structured logger.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"tvshelf.org/internal/auth"
	"tvshelf.org/internal/obs"
)

// Event names.
const (
	EventSignup      = "account.signup"
	EventSignin      = "account.signin"
	EventRefresh     = "account.refresh"
	EventUpdate      = "account.update"
	EventDelete      = "account.delete"
	EventRoleAssign  = "account.role.assign"
	EventRoleRevoke  = "account.role.revoke"
	EventShowsChange = "account.shows.change"
	EventShowCreate  = "show.create"
	EventShowUpdate  = "show.update"
	EventShowDelete  = "show.delete"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the acting account.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := logrus.Fields{
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry["user_id"] = principal.ID()
		if role, ok := principal.Effective(); ok {
			entry["role"] = role.String()
		}
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	obs.Logger().WithFields(entry).Info("audit")
	return nil
}
