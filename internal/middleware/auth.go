package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nzoschke/dreamsaver/internal/ctxkeys"
	"github.com/nzoschke/dreamsaver/internal/model"
)

var ErrTokenInvalid = errors.New("invalid token")

// OwnerClaims are the claims the identity provider puts in its access tokens.
type OwnerClaims struct {
	Email string `json:"email"`
	Plan  string `json:"plan"`
	jwt.RegisteredClaims
}

// TokenVerifier validates identity provider tokens signed with a shared HS256 secret.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Verify parses a token and returns the owner it identifies.
func (v *TokenVerifier) Verify(tokenString string) (*model.Owner, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &OwnerClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	plan := claims.Plan
	if plan == "" {
		plan = model.PlanFree
	}

	return &model.Owner{
		ID:    claims.Subject,
		Email: claims.Email,
		Plan:  plan,
	}, nil
}

// Sign issues a token for owner. Used by tooling and tests; production tokens come from the identity provider.
func (v *TokenVerifier) Sign(owner model.Owner, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = owner.ID
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, OwnerClaims{
		Email:            owner.Email,
		Plan:             owner.Plan,
		RegisteredClaims: claims,
	})
	return token.SignedString(v.secret)
}

// AuthMiddleware checks the bearer token and adds the owner to context if valid
func AuthMiddleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				// No token, continue without auth
				next.ServeHTTP(w, r)
				return
			}

			owner, err := verifier.Verify(strings.TrimSpace(tokenString))
			if err != nil {
				slog.Debug("rejected bearer token", "error", err, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			ctx := ctxkeys.WithOwner(r.Context(), owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth ensures the request carries a valid owner token
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.Owner(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required", "Unauthenticated", false)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func writeError(w http.ResponseWriter, status int, message, code string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(map[string]any{
		"error":     message,
		"code":      code,
		"retryable": retryable,
	})
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
