package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthAPIKey AuthMode = "apikey"
	AuthBearer AuthMode = "bearer"
)

func ParseAuthMode(s string) (AuthMode, error) {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", AuthNone:
		return AuthNone, nil
	case AuthAPIKey, AuthBearer:
		return m, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", s)
	}
}

type AuthConfig struct {
	Mode        AuthMode
	APIKey      string
	BearerToken string
	// SkipPaths are matched exactly; health and metrics stay open.
	SkipPaths []string
}

type authErr struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	var (
		check     func(r *http.Request) bool
		challenge string
	)
	switch cfg.Mode {
	case AuthAPIKey:
		check = func(r *http.Request) bool {
			return constantTimeEq(r.Header.Get("X-API-Key"), cfg.APIKey)
		}
		challenge = `ApiKey realm="tasks", header="X-API-Key"`
	case AuthBearer:
		check = func(r *http.Request) bool {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			return ok && strings.EqualFold(scheme, "Bearer") &&
				constantTimeEq(strings.TrimSpace(token), cfg.BearerToken)
		}
		challenge = `Bearer realm="tasks"`
	default:
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok || r.Method == http.MethodOptions || check(r) {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w, challenge)
		})
	}
}

func constantTimeEq(a, b string) bool {
	if a == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func unauthorized(w http.ResponseWriter, challenge string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", challenge)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(authErr{Error: "unauthorized", Message: "Missing or invalid credentials"})
}
