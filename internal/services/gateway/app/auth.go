package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// bearerGuard validates signed bearer tokens on API and WebSocket requests.
// A nil guard means auth is not configured and every request passes.
type bearerGuard struct {
	secret []byte
}

func newBearerGuard(secret string) *bearerGuard {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &bearerGuard{secret: []byte(secret)}
}

// authorize checks the request's bearer token. WebSocket clients that cannot
// set headers may pass the token as a "token" query parameter instead.
func (g *bearerGuard) authorize(r *http.Request) error {
	if g == nil {
		return nil
	}

	token := tokenFromRequest(r)
	if token == "" {
		return errors.New("bearer token is required")
	}

	_, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	return nil
}

func tokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
