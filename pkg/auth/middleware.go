package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey struct{}

// Method names how a request authenticated.
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "apikey"
)

// Principal is what the middleware attaches to an authenticated request.
type Principal struct {
	Identity
	Method string
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the request principal, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Middleware authenticates requests with a bearer token or an X-API-Key
// header. Either manager may be nil.
type Middleware struct {
	jwt      *JWTManager
	apiKeys  *APIKeyManager
	optional bool
	logger   *zap.Logger
}

// NewMiddleware creates the middleware. When optional is set,
// unauthenticated requests pass through without a principal; requests
// presenting bad credentials are still rejected.
func NewMiddleware(jwtManager *JWTManager, apiKeys *APIKeyManager, optional bool, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{jwt: jwtManager, apiKeys: apiKeys, optional: optional, logger: logger}
}

// Handler wraps next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Authorization"); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || m.jwt == nil {
				unauthorized(w, "Unsupported authorization scheme")
				return
			}
			claims, err := m.jwt.Verify(strings.TrimSpace(token))
			if err != nil {
				m.logger.Debug("token rejected", zap.Error(err))
				unauthorized(w, "Invalid or expired token")
				return
			}
			p := Principal{Identity: claims.Identity, Method: MethodJWT}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		if key := r.Header.Get("X-API-Key"); key != "" {
			if m.apiKeys == nil {
				unauthorized(w, "API keys are not accepted")
				return
			}
			k, err := m.apiKeys.Verify(key)
			if err != nil {
				m.logger.Debug("api key rejected", zap.Error(err))
				unauthorized(w, "Invalid or revoked API key")
				return
			}
			p := Principal{Identity: k.Identity, Method: MethodAPIKey}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		if m.optional {
			next.ServeHTTP(w, r)
			return
		}
		unauthorized(w, "No valid authentication provided")
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
}

// RequireElevated rejects principals that may not manage guild tags.
func RequireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok || !p.Elevated {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden", "message": "Insufficient permissions"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
