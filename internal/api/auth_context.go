package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/service"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

const (
	sessionKey ctxKey = "session"
	guestIDKey ctxKey = "guestID"
)

// maxGuestIDLength bounds client-supplied guest ids.
const maxGuestIDLength = 64

// GetSession returns the signed-in session from context.
// Returns 401 error if the request is not authenticated.
func GetSession(ctx context.Context) (*domain.Session, error) {
	session, ok := ctx.Value(sessionKey).(*domain.Session)
	if !ok || session == nil {
		return nil, huma.Error401Unauthorized("Authentication required")
	}
	return session, nil
}

// GetUserID returns the authenticated user ID from context.
func GetUserID(ctx context.Context) (string, error) {
	session, err := GetSession(ctx)
	if err != nil {
		return "", err
	}
	return session.UserID, nil
}

// viewerFromContext returns who is engaging: the signed-in user, else the guest named
// by the X-Guest-ID header, else the zero viewer.
func viewerFromContext(ctx context.Context) domain.Viewer {
	if session, ok := ctx.Value(sessionKey).(*domain.Session); ok && session != nil {
		return domain.AuthenticatedViewer(session.UserID)
	}
	if guestID, ok := ctx.Value(guestIDKey).(string); ok && guestID != "" {
		return domain.GuestViewer(guestID)
	}
	return domain.Viewer{}
}

// requireViewer is viewerFromContext for writes, which need some identity.
func requireViewer(ctx context.Context) (domain.Viewer, error) {
	viewer := viewerFromContext(ctx)
	if viewer.IsZero() {
		return viewer, huma.Error401Unauthorized("Sign in or send " + backend.GuestIDHeader)
	}
	return viewer, nil
}

// viewerMiddleware resolves the request identity. A valid Bearer token yields a session;
// otherwise a well-formed X-Guest-ID header yields a guest. Requests without either
// continue anonymously and handlers reject them where identity is required.
func viewerMiddleware(auth *service.AuthService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" && auth != nil {
				session, err := auth.VerifyAccessToken(ctx, token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey, session)))
					return
				}
				logger.Debug("ignoring invalid access token", slog.String("error", err.Error()))
			}

			if guestID := r.Header.Get(backend.GuestIDHeader); validGuestID(guestID) {
				ctx = context.WithValue(ctx, guestIDKey, guestID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validGuestID(id string) bool {
	return strings.HasPrefix(id, "guest-") && len(id) > len("guest-") && len(id) <= maxGuestIDLength
}
