/*
auth.go - Bearer token authentication and role checks

PURPOSE:
  The ledger trusts the caller's identity but does not issue accounts.
  Tokens are HS256 JWTs carrying the user id, email and role. Handlers read
  the identity from the request context via ClaimsFrom.

ROLES:
  learner, instructor, admin, and "both" which satisfies the learner and
  instructor checks. Admin routes accept only admin.

SEE ALSO:
  - server.go: Which routes require which role
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/course-ledger/ledger"
)

// Claims is the token payload.
type Claims struct {
	UserID int64       `json:"id"`
	Email  string      `json:"email"`
	Role   ledger.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies tokens with a shared secret.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthenticator returns an authenticator. Tokens it issues live for ttl.
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for u.
func (a *Authenticator) Issue(u ledger.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: int64(u.ID),
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(int64(u.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a token string.
func (a *Authenticator) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type claimsKey struct{}

// ClaimsFrom returns the authenticated identity, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "No authentication token, access denied")
			return
		}
		claims, err := a.Verify(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// HasRole reports whether have satisfies any of want.
func HasRole(have ledger.Role, want ...ledger.Role) bool {
	if slices.Contains(want, have) {
		return true
	}
	if have == ledger.RoleBoth {
		return slices.Contains(want, ledger.RoleLearner) || slices.Contains(want, ledger.RoleInstructor)
	}
	return false
}

// RequireRole allows the request through when the caller has one of roles.
func RequireRole(roles ...ledger.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !HasRole(claims.Role, roles...) {
				writeError(w, http.StatusForbidden, "Access denied. Insufficient permissions.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
