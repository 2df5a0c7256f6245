package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid bearer token")
	ErrMissingSubject = errors.New("bearer token has no subject")
)

// JWTVerifier authenticates callers from an HS256 bearer token. The token's
// subject claim becomes the caller. Requests without an Authorization header
// continue as Anonymous.
type JWTVerifier struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

// Verify parses token and returns the caller it names.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	if v.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(v.Now))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return Anonymous, ErrMissingSubject
	}
	return Identity(sub), nil
}

func (v *JWTVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if auth == "" {
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), Anonymous)))
			return
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			http.Error(w, "expected bearer token", http.StatusUnauthorized)
			return
		}
		caller, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// IssueToken signs an HS256 token for caller, valid for ttl.
func IssueToken(secret []byte, caller Identity, issuer string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   string(caller),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
