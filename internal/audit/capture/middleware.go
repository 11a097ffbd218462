// Package capture turns HTTP traffic and service-layer entity changes into
// audit events. The middleware observes every request; the interceptor is
// called by services that know which entity a request touched.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"starline/internal/audit"
	jwttoken "starline/internal/jwt_token"
	id "starline/pkg/domain"
	"starline/pkg/requestcontext"
)

// TokenDecoder extracts identity claims from a bearer token. Decoding is best
// effort: a bad token never blocks the request, it just leaves the audit
// trail anonymous.
type TokenDecoder interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// Auditor records a single audit event.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event) (*audit.Record, error)
}

// Paths that generate noise without compliance value. The audit query
// endpoints are here so that reading the trail does not write to it;
// violation, settings, and export mutations stay audited.
var excludedPrefixes = []string{
	"/health",
	"/ready",
	"/metrics",
	"/docs",
	"/favicon.ico",
	"/audit/logs",
	"/audit/phi-access",
	"/audit/users",
	"/audit/resources",
	"/audit/compliance",
}

// maxCapturedBody bounds how much of a request body lands in new_values.
const maxCapturedBody = 1000

type MiddlewareOption func(*Middleware)

func MiddlewareWithLogger(logger *slog.Logger) MiddlewareOption {
	return func(m *Middleware) { m.logger = logger }
}

// Middleware attributes each request to an actor and records one audit event
// per request after the response is written.
type Middleware struct {
	auditor Auditor
	decoder TokenDecoder
	logger  *slog.Logger
}

func NewMiddleware(auditor Auditor, decoder TokenDecoder, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{auditor: auditor, decoder: decoder}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := m.identify(r)
		ctx = requestcontext.WithRequestID(ctx, requestID(r))
		ctx = requestcontext.WithClientMetadata(ctx, clientIP(r), r.UserAgent())

		body := captureBody(r)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		durationMS := time.Since(start).Milliseconds()

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		ev := eventFromRequest(ctx, r, status, durationMS)
		ev.NewState = body

		// The client may already be gone; the record still has to land.
		if _, err := m.auditor.Record(context.WithoutCancel(ctx), ev); err != nil {
			if m.logger != nil {
				m.logger.ErrorContext(ctx, "failed to record request audit event",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
				)
			}
		}
	})
}

// identify decodes the bearer token into the request context. Requests with
// missing or invalid tokens pass through unattributed; authorization is the
// API's job, not the audit trail's.
func (m *Middleware) identify(r *http.Request) context.Context {
	ctx := r.Context()
	if m.decoder == nil {
		return ctx
	}

	header := r.Header.Get("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		return ctx
	}

	claims, err := m.decoder.ValidateToken(tokenString)
	if err != nil {
		return ctx
	}

	if actorID, err := id.ParseActorID(claims.ActorID); err == nil {
		ctx = requestcontext.WithActorID(ctx, actorID)
	}
	if tenantID, err := id.ParseTenantID(claims.TenantID); err == nil {
		ctx = requestcontext.WithTenantID(ctx, tenantID)
	}
	if sessionID, err := id.ParseSessionID(claims.SessionID); err == nil {
		ctx = requestcontext.WithSessionID(ctx, sessionID)
	}
	return ctx
}

func eventFromRequest(ctx context.Context, r *http.Request, status int, durationMS int64) audit.Event {
	resourceType, resourceID := resourceFromPath(r.URL.Path)

	ev := audit.Event{
		TenantID:       requestcontext.TenantID(ctx),
		ActorID:        requestcontext.ActorID(ctx),
		SessionID:      requestcontext.SessionID(ctx),
		RequestID:      requestcontext.RequestID(ctx),
		IPAddress:      requestcontext.ClientIP(ctx),
		UserAgent:      requestcontext.UserAgent(ctx),
		Method:         r.Method,
		Endpoint:       r.URL.Path,
		Action:         actionFor(r.Method, r.URL.Path, status),
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		ResponseStatus: &status,
		DurationMS:     &durationMS,
	}
	return ev
}

// captureBody snapshots a small JSON request body for the audit trail and
// puts the read bytes back for the handler. Oversized or non-JSON bodies
// are left out; sensitive fields are masked later by the recorder.
func captureBody(r *http.Request) map[string]any {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if err != nil || len(buf) > maxCapturedBody {
		return nil
	}

	var state map[string]any
	if err := json.Unmarshal(buf, &state); err != nil {
		return nil
	}
	return state
}

func excluded(path string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func requestID(r *http.Request) string {
	if rid := r.Header.Get("X-Request-ID"); rid != "" {
		return rid
	}
	return uuid.NewString()
}

// clientIP prefers proxy headers over the socket address. X-Forwarded-For may
// carry a chain; the first entry is the originating client.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func actionFor(method, path string, status int) audit.Action {
	switch {
	case strings.HasSuffix(path, "/login"):
		return audit.ActionLogin
	case strings.HasSuffix(path, "/logout"):
		return audit.ActionLogout
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		return audit.ActionAccessDenied
	}
	switch method {
	case http.MethodPost:
		return audit.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return audit.ActionUpdate
	case http.MethodDelete:
		return audit.ActionDelete
	default:
		return audit.ActionRead
	}
}

// resourceFromPath reads "/api/v1/clients/{uuid}/..." shapes: the last
// non-UUID segment is the resource type, a UUID following it is the id.
func resourceFromPath(path string) (string, id.ResourceID) {
	segments := strings.Split(strings.Trim(path, "/"), "/")

	resourceType := ""
	var resourceID id.ResourceID
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if parsed, err := id.ParseResourceID(seg); err == nil {
			resourceID = parsed
			continue
		}
		resourceType = seg
		resourceID = id.ResourceID{}
	}
	if resourceType == "" {
		resourceType = "http_request"
	}
	return resourceType, resourceID
}
