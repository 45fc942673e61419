package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/covox/voicedash/internal/identity"
	"github.com/covox/voicedash/internal/store"
	"github.com/covox/voicedash/pkg/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	ctxKeyUserID contextKey = "user_id"
	ctxKeyOrgID  contextKey = "org_id"
)

// handleSignIn exchanges an email/password pair for a bearer token.
func (g *Gateway) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		g.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, userID, err := g.identity.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		g.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		g.logger.Error("sign-in failed", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	if g.eventBus != nil {
		g.eventBus.Publish(r.Context(), events.NewEvent(events.EventUserSignedIn, "", map[string]interface{}{
			"user_id": userID.String(),
		}))
	}

	g.writeJSON(w, http.StatusOK, map[string]string{
		"token":  token,
		"userId": userID.String(),
	})
}

// authMiddleware resolves a bearer token to the caller's organization via
// their membership and stores both ids on the request context.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			g.writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		userID, err := g.identity.VerifyToken(token)
		if err != nil {
			g.logger.Warn("authentication failed", zap.Error(err))
			g.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		orgID, err := g.directory.GetMembershipOrg(r.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			g.writeError(w, http.StatusForbidden, "no organization membership")
			return
		}
		if err != nil {
			g.logger.Error("membership lookup failed", zap.Error(err))
			g.writeError(w, http.StatusInternalServerError, "membership lookup failed")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyOrgID, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func orgIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKeyOrgID).(uuid.UUID)
	return id, ok
}
