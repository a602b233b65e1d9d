package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// FaucetScope is the token scope fs_faucet requires.
const FaucetScope = "faucet"

const defaultClockSkew = 2 * time.Minute

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
	errMissingScope = errors.New("insufficient scope")
)

// Authenticator checks HMAC-signed bearer tokens on privileged methods.
type Authenticator struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
	nowFn     func() time.Time
}

// NewAuthenticator returns nil when secret is blank, which leaves privileged
// methods open.
func NewAuthenticator(secret, issuer string) *Authenticator {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil
	}
	return &Authenticator{
		secret:    []byte(trimmed),
		issuer:    strings.TrimSpace(issuer),
		clockSkew: defaultClockSkew,
		nowFn:     time.Now,
	}
}

// Authorize validates the request's bearer token and its scope claim.
func (a *Authenticator) Authorize(r *http.Request, scope string) error {
	if a == nil {
		return nil
	}
	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		return errMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.clockSkew),
		jwt.WithTimeFunc(a.nowFn),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return errInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errInvalidToken
	}
	if scope != "" && !hasScope(claims, scope) {
		return errMissingScope
	}
	return nil
}

func extractBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

func hasScope(claims jwt.MapClaims, want string) bool {
	switch v := claims["scope"].(type) {
	case string:
		for _, s := range strings.Fields(v) {
			if s == want {
				return true
			}
		}
	case []interface{}:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}
