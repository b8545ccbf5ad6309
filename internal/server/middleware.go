package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Rat-cell/lockerhub/internal/lifecycle"
)

type contextKey string

const usernameKey contextKey = "username"

func actorFrom(ctx context.Context) lifecycle.Actor {
	username, _ := ctx.Value(usernameKey).(string)
	return lifecycle.Actor{ID: username, Username: username}
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		valid, err := s.users.ValidateUser(r.Context(), username, password)
		if err != nil || !valid {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestAudit captures one handled HTTP request.
type RequestAudit struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Username   string    `json:"username,omitempty"`
	StatusCode int       `json:"status_code"`
	Request    string    `json:"request,omitempty"`
	Response   string    `json:"response,omitempty"`
}

func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Metrics scrapes are noise in the audit trail.
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		entry := RequestAudit{
			Timestamp: time.Now().UTC(),
			Method:    r.Method,
			Path:      r.URL.Path,
		}
		if username, _, ok := r.BasicAuth(); ok {
			entry.Username = username
		}

		if r.Body != nil && !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			requestBody, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			entry.Request = redactSecrets(string(requestBody))
		}

		wrw := newResponseWriterWrapper(w)
		next.ServeHTTP(wrw, r)

		entry.StatusCode = wrw.GetStatusCode()
		entry.Response = redactSecrets(string(wrw.GetBody()))
		s.audit.Record(r.Context(), entry)
	})
}

// redactSecrets blanks PIN and password values so plaintext credentials never
// reach the audit trail.
func redactSecrets(body string) string {
	if !strings.Contains(body, `"pin"`) && !strings.Contains(body, `"password"`) {
		return body
	}
	for _, field := range []string{`"pin"`, `"password"`} {
		var out strings.Builder
		rest := body
		for {
			idx := strings.Index(rest, field)
			if idx < 0 {
				out.WriteString(rest)
				break
			}
			afterField := idx + len(field)
			colon := strings.Index(rest[afterField:], ":")
			if colon < 0 {
				out.WriteString(rest)
				break
			}
			valueStart := afterField + colon + 1
			end := valueStart
			for end < len(rest) && rest[end] != ',' && rest[end] != '}' {
				end++
			}
			out.WriteString(rest[:valueStart])
			out.WriteString(`"[REDACTED]"`)
			rest = rest[end:]
		}
		body = out.String()
	}
	return body
}
