// Package identity exposes the authenticated customer, if any, for stamping
// order records. Authentication itself happens upstream.
package identity

import (
	"context"
	"net/http"
	"strings"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Accessor returns the user of the current request.
type Accessor interface {
	CurrentUser(ctx context.Context) (User, bool)
}

type ctxKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.ID != ""
}

// ContextAccessor reads the user placed on the context by Middleware.
type ContextAccessor struct{}

func (ContextAccessor) CurrentUser(ctx context.Context) (User, bool) {
	return FromContext(ctx)
}

// Middleware trusts identity headers set by the authenticating proxy.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		u := User{
			ID:    id,
			Email: strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
			Name:  strings.TrimSpace(r.Header.Get(HeaderUserName)),
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}
