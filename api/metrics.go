package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestSpanName    = "taskflow.http.request"
	requestEventName   = "taskflow.request.completed"
	requestEventDomain = "taskflow.api"
	attrPrefix         = "taskflow.request."
	tracerName         = "taskflow/api"
)

// requestMetrics collects per-request timings and emits them both as a span
// and as a structured log entry.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	start      time.Time
	route      string
	method     string
	userID     string
	errorStage string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
		method: method,
	}, ctx
}

func (m *requestMetrics) SetUser(id string) {
	if m != nil {
		m.userID = id
	}
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	defer m.span.End()

	total := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":            m.route,
		"http.method":           m.method,
		"http.status_code":      status,
		attrPrefix + "total_ms": total,
	}
	spanAttrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", total),
	}
	if m.userID != "" {
		attrs["enduser.id"] = m.userID
		spanAttrs = append(spanAttrs, attribute.String("enduser.id", m.userID))
	}
	if m.errorStage != "" {
		attrs[attrPrefix+"error_stage"] = m.errorStage
		spanAttrs = append(spanAttrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs["error.message"] = err.Error()
		spanAttrs = append(spanAttrs, attribute.String("error.message", err.Error()))
	}
	m.span.SetAttributes(spanAttrs...)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, spanAttrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

	switch {
	case err != nil:
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		m.span.SetStatus(codes.Error, http.StatusText(status))
	default:
		m.span.SetStatus(codes.Ok, "")
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if sc := m.span.SpanContext(); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityForStatus maps an HTTP outcome onto OpenTelemetry log severities.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// metricsMiddleware wraps every request in a requestMetrics span.
func metricsMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsKey, m)

			err := next(c)
			status, logErr := c.Response().Status, err
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
					if status < http.StatusInternalServerError {
						logErr = nil
					}
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			m.SetUser(userID(c))
			m.Log(status, logErr)
			return err
		}
	}
}

const metricsKey = "requestMetrics"

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsKey).(*requestMetrics)
	return m
}
