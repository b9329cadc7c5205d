// Package transport is the request auth adapter: an http.RoundTripper that
// attaches the session's bearer token and reacts to 401 and 403 responses.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/fw-platform/wish-console/notify"
	"github.com/fw-platform/wish-console/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// HeaderRequestID correlates client and backend logs
	HeaderRequestID = "X-Request-ID"

	tracerName = "github.com/fw-platform/wish-console/transport"
)

// ForcedLogoutForbidden is the reason passed to ForceLogout on a 403
const ForcedLogoutForbidden = "forbidden"

// TokenProvider is the part of the session manager the adapter needs
type TokenProvider interface {
	AccessToken() string
	Refresh(ctx context.Context) (session.Session, error)
	ForceLogout(reason string)
}

// AuthTransport attaches "Authorization: Bearer <token>" and applies the
// 401/403 policy:
//   - 403: forced logout, the 403 is returned unchanged, no retry.
//   - 401: one refresh, then exactly one retry with the new token. If the
//     refresh fails the original 401 is returned. A 401 on the retry is
//     returned as is.
type AuthTransport struct {
	tokens  TokenProvider
	base    http.RoundTripper
	loading *notify.Loading
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// Option configures an AuthTransport
type Option func(*AuthTransport)

// WithBase sets the round tripper that performs the requests (default http.DefaultTransport)
func WithBase(rt http.RoundTripper) Option {
	return func(t *AuthTransport) {
		if rt != nil {
			t.base = rt
		}
	}
}

// WithLoading counts requests in flight on l
func WithLoading(l *notify.Loading) Option {
	return func(t *AuthTransport) {
		t.loading = l
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *AuthTransport) {
		t.tracer = tp.Tracer(tracerName)
	}
}

// WithLogger overrides the global zerolog logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *AuthTransport) {
		t.logger = logger
	}
}

func New(tokens TokenProvider, options ...Option) *AuthTransport {
	t := &AuthTransport{
		tokens: tokens,
		base:   http.DefaultTransport,
		tracer: otel.Tracer(tracerName),
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.loading != nil {
		t.loading.Start()
		defer t.loading.Stop()
	}

	ctx, span := t.tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		),
	)
	defer span.End()

	getBody, err := replayableBody(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := t.logger.With().Str("request_id", requestID).Str("method", req.Method).Str("path", req.URL.Path).Logger()

	sentToken := t.tokens.AccessToken()
	resp, err := t.send(ctx, req, getBody, requestID, sentToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusForbidden:
		logger.Warn().Msg("Forbidden, forcing logout")
		t.tokens.ForceLogout(ForcedLogoutForbidden)
		return resp, nil

	case http.StatusUnauthorized:
		newToken, ok := t.renewToken(ctx, sentToken, logger)
		if !ok {
			return resp, nil
		}
		drain(resp)

		span.SetAttributes(attribute.Bool("auth.retried", true))
		retry, err := t.send(ctx, req, getBody, requestID, newToken)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetAttributes(attribute.Int("http.response.status_code", retry.StatusCode))
		logger.Debug().Int("status", retry.StatusCode).Msg("Retried after refresh")
		return retry, nil
	}

	logger.Debug().Int("status", resp.StatusCode).Msg("Request complete")
	return resp, nil
}

// renewToken returns the token to retry with. When another request already
// refreshed the session the current token is reused without a new refresh.
func (t *AuthTransport) renewToken(ctx context.Context, sentToken string, logger zerolog.Logger) (string, bool) {
	if current := t.tokens.AccessToken(); current != "" && current != sentToken {
		logger.Debug().Msg("Token changed while in flight, retrying with current token")
		return current, true
	}

	started := time.Now()
	sess, err := t.tokens.Refresh(ctx)
	if err != nil {
		logger.Info().Err(err).Msg("Refresh after 401 failed")
		return "", false
	}
	logger.Debug().Dur("refresh_ms", time.Since(started)).Msg("Refreshed after 401")
	return sess.AccessToken, true
}

func (t *AuthTransport) send(ctx context.Context, req *http.Request, getBody func() (io.ReadCloser, error), requestID, token string) (*http.Response, error) {
	out := req.Clone(ctx)
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
		out.GetBody = getBody
	}
	out.Header.Set(HeaderRequestID, requestID)
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	return t.base.RoundTrip(out)
}

// replayableBody returns a body factory so the request can be sent twice
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		req.Body.Close()
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
