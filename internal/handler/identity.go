package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lapmart/lapmart-backend/internal/domain/identity"
	"github.com/lapmart/lapmart-backend/pkg/httpmiddleware"
)

// SessionCookie names the guest session cookie.
const SessionCookie = "lapmart_session"

const sessionTTL = 7 * 24 * time.Hour

type identityKey struct{}

type adminKey struct{}

// IdentityFrom returns the identity the middleware resolved for the request.
func IdentityFrom(ctx context.Context) identity.Identity {
	id, _ := ctx.Value(identityKey{}).(identity.Identity)
	return id
}

// IsAdmin reports whether the request carried a bearer token with the admin
// role. Guests are never admins.
func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(adminKey{}).(bool)
	return ok
}

// ResolveIdentity resolves who is shopping. A valid bearer token wins; a bad
// token is rejected rather than silently downgraded to guest. Without a
// token, an existing session cookie or X-Session-ID header identifies the
// guest, and first-time visitors get a fresh session cookie.
func ResolveIdentity(jwtSecret []byte) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				id    identity.Identity
				admin bool
			)

			if auth := r.Header.Get("Authorization"); auth != "" {
				claims, ok := parseBearer(auth, jwtSecret)
				if !ok {
					writeFail(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token", nil)
					return
				}
				id = identity.User(claims.UserID)
				admin = claims.Admin
			} else if sid := guestSession(r); sid != "" {
				id = identity.Guest(sid)
			} else {
				sid := uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    sid,
					Path:     "/",
					Expires:  time.Now().Add(sessionTTL),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
				id = identity.Guest(sid)
			}

			ctx := context.WithValue(r.Context(), identityKey{}, id)
			if admin {
				ctx = context.WithValue(ctx, adminKey{}, true)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type bearerClaims struct {
	UserID int64
	Admin  bool
}

func parseBearer(header string, secret []byte) (bearerClaims, bool) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return bearerClaims{}, false
	}

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return bearerClaims{}, false
	}

	uid, ok := claims["uid"].(float64)
	if !ok || uid <= 0 {
		return bearerClaims{}, false
	}
	role, _ := claims["role"].(string)
	return bearerClaims{UserID: int64(uid), Admin: role == "admin"}, true
}

func guestSession(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-Session-ID")
}
