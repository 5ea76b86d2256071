package middleware

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
)

type authCtxKey int

const authKey authCtxKey = 7

const RoleAdmin = "admin"

type Claims struct {
	UserID string   `json:"uid"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(role string) bool { return slices.Contains(c.Roles, role) }

// Credential is the caller's bearer token, forwarded upstream unchanged.
// Claims is set only when tokens are verified locally.
type Credential struct {
	Token  string
	Claims *Claims
}

func SignToken(secret []byte, uid, email string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{UserID: uid, Email: email, Roles: roles, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(secret []byte, tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// WithAuth attaches the bearer credential to the request context. With a
// non-empty secret the token must verify, otherwise it is passed through
// as-is for the upstream to judge.
func WithAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearer(r)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}
			cred := Credential{Token: tok}
			if len(secret) > 0 {
				c, err := ParseToken(secret, tok)
				if err != nil {
					next.ServeHTTP(w, r)
					return
				}
				cred.Claims = c
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authKey, cred)))
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CredentialFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects verified callers lacking role. Unverified credentials
// pass; the upstream enforces roles for them.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, ok := CredentialFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if cred.Claims != nil && !cred.Claims.HasRole(role) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CredentialFromContext(ctx context.Context) (Credential, bool) {
	c, ok := ctx.Value(authKey).(Credential)
	return c, ok
}

// OwnerFromContext names the caller for draft ownership: the verified user id,
// or a digest of the raw token when tokens are not verified locally.
func OwnerFromContext(ctx context.Context) string {
	c, ok := CredentialFromContext(ctx)
	if !ok {
		return ""
	}
	if c.Claims != nil && c.Claims.UserID != "" {
		return c.Claims.UserID
	}
	return "token:" + tokenDigest(c.Token)
}

func tokenDigest(tok string) string {
	sum := blake2b.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:12])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
