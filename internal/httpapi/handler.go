// Package httpapi exposes the session and project operations over HTTP.
// Handlers are thin translation: they decode wire types, call the session
// core, and map typed failures onto status codes.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"

	"pkt.systems/fmusd/internal/clock"
	"pkt.systems/fmusd/internal/correlation"
	"pkt.systems/fmusd/internal/loggingutil"
	"pkt.systems/fmusd/internal/rms"
	"pkt.systems/fmusd/internal/session"
	"pkt.systems/fmusd/internal/smda"
	"pkt.systems/fmusd/internal/uuidv7"
)

const (
	// SessionCookieName carries the session id between requests.
	SessionCookieName = "fmu_settings_session"
	// SessionHeaderName is the header alternative to the cookie.
	SessionHeaderName = "X-FMU-Session"
	// APITokenHeaderName authenticates the local frontend to the daemon.
	APITokenHeaderName = "X-FMU-Settings-API"
	// CorrelationHeaderName links requests to log lines.
	CorrelationHeaderName = "X-Correlation-ID"
	// UpstreamSourceHeaderName names the upstream service a response came
	// from.
	UpstreamSourceHeaderName = "X-Upstream-Source"
)

const upstreamSourceSMDA = "SMDA"

// Config wires a Handler.
type Config struct {
	Manager *session.Manager
	Opener  rms.Opener
	// SMDA, when set, backs the /v1/smda routes; without it they report
	// the service unavailable.
	SMDA   smda.Connector
	Logger pslog.Logger
	Clock  clock.Clock
	// APIToken, when non-empty, is required on every request except
	// health probes.
	APIToken string
	// UserHome is the default home directory for session creation.
	UserHome string
	// RMSVersion overrides the default RMS version.
	RMSVersion string
	// MaxBodyBytes bounds request bodies; zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// EnableTracing turns on span creation around every operation.
	EnableTracing bool
}

// Handler serves the fmusd HTTP API.
type Handler struct {
	manager    *session.Manager
	opener     rms.Opener
	smdaConn   smda.Connector
	logger     pslog.Logger
	clock      clock.Clock
	apiToken   string
	userHome   string
	rmsVersion string
	maxBody    int64
	tracer     trace.Tracer
	tracing    bool
}

// New constructs a Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Manager == nil {
		return nil, errors.New("httpapi: session manager required")
	}
	h := &Handler{
		manager:    cfg.Manager,
		opener:     cfg.Opener,
		smdaConn:   cfg.SMDA,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		apiToken:   cfg.APIToken,
		userHome:   cfg.UserHome,
		rmsVersion: cfg.RMSVersion,
		maxBody:    cfg.MaxBodyBytes,
		tracing:    cfg.EnableTracing,
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	h.logger = loggingutil.Ensure(h.logger)
	if h.clock == nil {
		h.clock = clock.Real{}
	}
	if h.rmsVersion == "" {
		h.rmsVersion = rms.DefaultVersion
	}
	if h.tracing {
		h.tracer = otel.Tracer("pkt.systems/fmusd/internal/httpapi")
	}
	return h, nil
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/v1/session", h.wrap("session", h.handleSession))
	mux.Handle("/v1/session/access_token", h.wrap("session.access_token", h.handleAccessToken))
	mux.Handle("/v1/project", h.wrap("project", h.handleProject))
	mux.Handle("/v1/project/init", h.wrap("project.init", h.handleProjectInit))
	mux.Handle("/v1/project/lock", h.wrap("project.lock", h.handleProjectLock))
	mux.Handle("/v1/project/lock_status", h.wrap("project.lock_status", h.handleProjectLockStatus))
	mux.Handle("/v1/rms/open", h.wrap("rms.open", h.handleRMSOpen))
	mux.Handle("/v1/rms/close", h.wrap("rms.close", h.handleRMSClose))
	mux.Handle("/v1/rms/stratigraphic_column", h.wrap("rms.stratigraphic_column", h.handleRMSStratColumn))
	mux.Handle("/v1/rms/horizons", h.wrap("rms.horizons", h.handleRMSHorizons))
	mux.Handle("/v1/rms/wells", h.wrap("rms.wells", h.handleRMSWells))
	mux.Handle("/v1/smda/health", h.wrap("smda.health", h.handleSMDAHealth))
	mux.Handle("/v1/smda/field", h.wrap("smda.field", h.handleSMDAField))
	mux.Handle("/v1/smda/masterdata", h.wrap("smda.masterdata", h.handleSMDAMasterdata))
	mux.Handle("/healthz", h.wrap("healthz", h.handleHealth))
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (h *Handler) wrap(operation string, fn handlerFunc) http.Handler {
	spanName := "fmusd.http." + operation
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		var span trace.Span
		if h.tracing {
			ctx, span = h.tracer.Start(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("fmusd.operation", operation),
					attribute.String("fmusd.route", r.URL.Path),
				),
			)
			defer span.End()
		}

		if corr := strings.TrimSpace(r.Header.Get(CorrelationHeaderName)); corr != "" {
			ctx = correlation.Set(ctx, corr)
		}
		ctx = correlation.Ensure(ctx)

		logger := loggingutil.WithSubsystem(h.logger, loggingutil.Subsystem("api.http", operation)).With(
			"req_id", uuidv7.NewString(),
			"method", r.Method,
			"cid", correlation.ID(ctx),
		)
		ctx = pslog.ContextWithLogger(ctx, logger)
		r = r.WithContext(ctx)

		w.Header().Set(CorrelationHeaderName, correlation.ID(ctx))

		if operation != "healthz" && !h.authorized(r) {
			if span != nil {
				span.SetStatus(codes.Error, "unauthorized")
			}
			h.handleError(w, r, httpError{Status: http.StatusUnauthorized, Code: "not_authorized", Detail: "Not authorized"})
			return
		}

		if err := fn(w, r); err != nil {
			if span != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			h.handleError(w, r, err)
			return
		}
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
		logger.Debug("http.request.done", "elapsed", time.Since(start))
	})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.apiToken == "" {
		return true
	}
	presented := r.Header.Get(APITokenHeaderName)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.apiToken)) == 1
}

// httpError is the transport-aware error handlers return.
type httpError struct {
	Status int
	Code   string
	Detail string
}

func (e httpError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

// convertError maps core failures onto HTTP-aware errors.
func convertError(err error) httpError {
	var he httpError
	if errors.As(err, &he) {
		return he
	}
	var failure session.Failure
	if errors.As(err, &failure) {
		status := failure.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return httpError{Status: status, Code: failure.Code, Detail: failure.Detail}
	}
	return httpError{Status: http.StatusInternalServerError, Code: "internal_error", Detail: err.Error()}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	he := convertError(err)
	logger := pslog.LoggerFromContext(r.Context())
	if logger == nil {
		logger = h.logger
	}
	if he.Status >= http.StatusInternalServerError {
		logger.Error("http.request.failed", "status", he.Status, "code", he.Code, "error", he.Detail)
	} else {
		logger.Info("http.request.rejected", "status", he.Status, "code", he.Code)
	}
	writeJSON(w, he.Status, apiError(he, correlation.ID(r.Context())))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
