package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultJWKSCacheTTL = 15 * time.Minute

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// AuthConfig selects how bearer tokens are verified. With a SharedSecret
// tokens are HS256 (local development); otherwise RS256 against JWKS.
type AuthConfig struct {
	JWKS         *keyfunc.JWKS
	Audience     string
	Issuer       string
	SharedSecret []byte
	KeyCacheTTL  time.Duration
}

// Auth validates incoming JWT tokens and yields the subject as user id.
type Auth struct {
	cfg    AuthConfig
	parser *jwt.Parser

	keyCache sync.Map
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

func NewAuth(cfg AuthConfig) *Auth {
	if cfg.KeyCacheTTL == 0 {
		cfg.KeyCacheTTL = defaultJWKSCacheTTL
	}
	a := &Auth{cfg: cfg}
	if len(cfg.SharedSecret) > 0 {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// bearerToken extracts the token of a "Bearer <jwt>" header value.
func bearerToken(h string) (string, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	raw, err := bearerToken(h)
	if err != nil {
		return "", err
	}

	token, err := a.parser.Parse(raw, a.keyFor)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return "", errors.New("token expired")
	}
	if a.cfg.Audience != "" && !claims.VerifyAudience(a.cfg.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.cfg.Issuer != "" && !claims.VerifyIssuer(a.cfg.Issuer, false) {
		return "", errors.New("invalid issuer")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyFor(t *jwt.Token) (any, error) {
	if len(a.cfg.SharedSecret) > 0 {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.cfg.SharedSecret, nil
	}
	if a.cfg.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := t.Header["kid"].(string)
	if kid != "" {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}
	key, err := a.cfg.JWKS.Keyfunc(t)
	if err != nil {
		return nil, err
	}
	if kid != "" {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.cfg.KeyCacheTTL)})
	}
	return key, nil
}
