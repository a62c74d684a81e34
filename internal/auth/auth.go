// Package auth resolves the identity behind a statement and whether that
// identity bypasses the disk guard.
package auth

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// UserHeader carries the caller's identity when bearer tokens are disabled.
const UserHeader = "X-Maxdiskusage-User"

// ErrMissingToken is returned when JWT auth is enabled and no token was sent.
var ErrMissingToken = errors.New("missing bearer token")

// Identity is the resolved caller of one statement.
type Identity struct {
	Name       string
	Privileged bool
}

// Claims are the JWT claims understood by the admission API.
type Claims struct {
	Privileged bool `json:"privileged,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator performs privilege lookups.
type Authenticator struct {
	privileged map[string]bool
	jwtEnabled bool
	secret     []byte
	method     jwt.SigningMethod
}

// New builds an Authenticator from the privileges and security sections.
func New(privs config.PrivilegesConfig, sec config.SecurityConfig) (*Authenticator, error) {
	a := &Authenticator{
		privileged: make(map[string]bool, len(privs.Users)),
		jwtEnabled: sec.EnableJWT,
		secret:     []byte(sec.JWTSecret),
	}
	for _, u := range privs.Users {
		a.privileged[strings.ToLower(strings.TrimSpace(u))] = true
	}

	if sec.EnableJWT {
		m := jwt.GetSigningMethod(sec.JWTAlgorithm)
		if _, ok := m.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unsupported JWT algorithm %q (want HS256, HS384 or HS512)", sec.JWTAlgorithm)
		}
		a.method = m
	}

	log.Infof("Authenticator initialized: %d privileged users, jwt=%v", len(a.privileged), a.jwtEnabled)
	return a, nil
}

// Privileged reports whether name is on the privileged list.
func (a *Authenticator) Privileged(name string) bool {
	return a.privileged[strings.ToLower(strings.TrimSpace(name))]
}

// Resolve returns the identity for a bare user name.
func (a *Authenticator) Resolve(name string) Identity {
	return Identity{Name: name, Privileged: a.Privileged(name)}
}

// FromRequest extracts the caller of an HTTP request. With JWT enabled the
// bearer token is mandatory and its "privileged" claim is honored in
// addition to the static list; otherwise the user header is trusted.
func (a *Authenticator) FromRequest(r *http.Request) (Identity, error) {
	if !a.jwtEnabled {
		return a.Resolve(r.Header.Get(UserHeader)), nil
	}

	tokenString := GetBearerTokenFromRequest(r)
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{a.method.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("JWT validation failed: %w", err)
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid JWT")
	}

	id := a.Resolve(claims.Subject)
	id.Privileged = id.Privileged || claims.Privileged
	return id, nil
}

// IssueToken signs a token for subject valid for ttl.
func (a *Authenticator) IssueToken(subject string, privileged bool, ttl time.Duration) (string, error) {
	if !a.jwtEnabled {
		return "", errors.New("JWT is disabled")
	}
	now := time.Now()
	claims := Claims{
		Privileged: privileged,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(a.method, claims).SignedString(a.secret)
}

// HeaderTrustExposed reports whether the user header is trusted on an
// address reachable from other hosts. An empty bind address listens on all
// interfaces.
func HeaderTrustExposed(bindIP string, sec config.SecurityConfig) bool {
	if sec.EnableJWT {
		return false
	}
	host := strings.Trim(strings.TrimSpace(bindIP), "[]")
	if strings.EqualFold(host, "localhost") {
		return false
	}
	ip := net.ParseIP(host)
	return ip == nil || !ip.IsLoopback()
}

// GetBearerTokenFromRequest extracts the Bearer token string from the request.
func GetBearerTokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
