package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// APIKeyHeader carries the SDK credential.
const APIKeyHeader = "X-API-Key"

const keyModeKey contextKey = "key_mode"

// KeySet lists the credentials the server accepts. An empty set accepts any
// non-empty key.
type KeySet struct {
	Test string
	Live string
}

// mode reports which slot key matches, or "" for none.
func (k KeySet) mode(key string) string {
	switch {
	case k.Test != "" && subtle.ConstantTimeCompare([]byte(key), []byte(k.Test)) == 1:
		return "test"
	case k.Live != "" && subtle.ConstantTimeCompare([]byte(key), []byte(k.Live)) == 1:
		return "live"
	}
	return ""
}

func (k KeySet) empty() bool {
	return k.Test == "" && k.Live == ""
}

// APIKey returns a middleware that rejects requests without an acceptable
// X-API-Key header. The matched mode is stored in the request context.
func APIKey(keys KeySet, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if key == "" {
				logAuthFailure(logger, r, "missing_key")
				writeAuthError(w)
				return
			}

			mode := "unknown"
			if !keys.empty() {
				mode = keys.mode(key)
				if mode == "" {
					logAuthFailure(logger, r, "invalid_key")
					writeAuthError(w)
					return
				}
			}

			ctx := context.WithValue(r.Context(), keyModeKey, mode)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyMode returns "test", "live" or "unknown" for authenticated requests.
func GetKeyMode(ctx context.Context) string {
	if mode, ok := ctx.Value(keyModeKey).(string); ok {
		return mode
	}
	return ""
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteError writes the standard JSON error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
