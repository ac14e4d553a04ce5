// Package auth carries the authenticated caller through a request context.
//
// Both middleware and handler import it, so it must not import either.
package auth

import (
	"context"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/google/uuid"
)

type contextKey int

const (
	userKey contextKey = iota
	requestInfoKey
)

// RequestInfo identifies a request and, once the session is resolved, its
// caller. It is created by the outermost middleware and filled in by
// SetUser further down the chain, so request logs can name the user even
// though they are written outside the authentication middleware.
type RequestInfo struct {
	ID     string
	UserID uuid.UUID
	Role   domain.Role
}

// WithRequestInfo attaches a fresh RequestInfo for requestID to ctx.
func WithRequestInfo(ctx context.Context, requestID string) (context.Context, *RequestInfo) {
	info := &RequestInfo{ID: requestID}
	return context.WithValue(ctx, requestInfoKey, info), info
}

// GetRequestInfo returns the request's info, or nil outside a request.
func GetRequestInfo(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey).(*RequestInfo)
	return info
}

// GetUser returns the authenticated user, or nil.
func GetUser(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

// SetUser stores user in the context and records it on the request info.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	if info := GetRequestInfo(ctx); info != nil && user != nil {
		info.UserID = user.ID
		info.Role = user.Role
	}
	return context.WithValue(ctx, userKey, user)
}
