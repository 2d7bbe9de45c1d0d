package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"revchain/config"
	"revchain/crypto"
	"revchain/observability/logging"
)

type contextKey string

const (
	callerContextKey    contextKey = "revchain.caller"
	requestIDContextKey contextKey = "revchain.requestid"
)

const authClockSkew = 2 * time.Minute

// Authenticator validates HMAC-signed bearer tokens. The token subject names
// the calling holder, as a bech32 or hex address.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	logger   *slog.Logger
}

// NewAuthenticator returns nil when authentication is disabled.
func NewAuthenticator(cfg config.AuthConfig, logger *slog.Logger) *Authenticator {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secret:   []byte(strings.TrimSpace(cfg.HMACSecret)),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		logger:   logger,
	}
}

// Middleware rejects requests without a valid token and stores the caller
// identity in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeErrorCode(w, http.StatusUnauthorized, "missing_token", "missing bearer token")
			return
		}
		caller, err := a.authenticate(token)
		if err != nil {
			a.logger.Warn("token rejected",
				slog.String("error", err.Error()),
				logging.Fingerprint("token", []byte(token)),
				slog.String("requestid", requestIDFrom(r.Context())))
			writeErrorCode(w, http.StatusUnauthorized, "invalid_token", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), callerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(tokenString string) ([20]byte, error) {
	var zero [20]byte
	if len(a.secret) == 0 {
		return zero, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(authClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return zero, err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return zero, err
	}
	if strings.TrimSpace(subject) == "" {
		return zero, errors.New("token subject missing")
	}
	return crypto.ParseIdentity(subject)
}

func extractBearer(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func callerFrom(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(callerContextKey).([20]byte)
	return caller, ok
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
