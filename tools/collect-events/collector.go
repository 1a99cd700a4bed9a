package main

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	requestEventName   = "taskflow.request.completed"
	requestEventDomain = "taskflow.api"

	attrRoute      = "http.route"
	attrStatusCode = "http.status_code"
	attrTotalMs    = "taskflow.request.total_ms"
	attrErrorStage = "taskflow.request.error_stage"
)

// logRecord is one JSON line written by logrus for an observability event.
type logRecord struct {
	EventName    string         `json:"event.name"`
	EventDomain  string         `json:"event.domain"`
	SeverityText string         `json:"severity_text"`
	Attributes   map[string]any `json:"attributes"`
}

type numericStats struct {
	Count  int
	Sum    float64
	Min    float64
	Max    float64
	values []float64
}

func newNumericStats() *numericStats { return &numericStats{Min: math.MaxFloat64} }

func (n *numericStats) add(v float64) {
	n.Count++
	n.Sum += v
	n.Min = min(n.Min, v)
	n.Max = max(n.Max, v)
	n.values = append(n.values, v)
}

// percentile uses nearest-rank on the recorded values.
func (n *numericStats) percentile(p float64) float64 {
	if n.Count == 0 {
		return 0
	}
	sorted := append([]float64(nil), n.values...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(rank, 0)]
}

type durationSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min_ms"`
	Max   float64 `json:"max_ms"`
	Avg   float64 `json:"avg_ms"`
	P95   float64 `json:"p95_ms"`
}

func (n *numericStats) summary() durationSummary {
	if n == nil || n.Count == 0 {
		return durationSummary{}
	}
	return durationSummary{Count: n.Count, Min: n.Min, Max: n.Max, Avg: n.Sum / float64(n.Count), P95: n.percentile(95)}
}

type routeStats struct {
	statuses map[int]int
	total    *numericStats
}

type routeSummary struct {
	StatusCounts map[string]int  `json:"status_counts"`
	TotalMs      durationSummary `json:"total_ms"`
}

type summaryOutput struct {
	EventName      string                  `json:"event_name"`
	EventDomain    string                  `json:"event_domain"`
	TotalEvents    int                     `json:"total_events"`
	SeverityCounts map[string]int          `json:"severity_counts"`
	Routes         map[string]routeSummary `json:"routes"`
	ErrorStages    map[string]int          `json:"error_stages,omitempty"`
	SkippedLines   int                     `json:"skipped_lines"`
}

type collector struct {
	eventName   string
	eventDomain string

	count       int
	severities  map[string]int
	routes      map[string]*routeStats
	errorStages map[string]int
	skipped     int
}

func newCollector(eventName, eventDomain string) *collector {
	return &collector{
		eventName:   eventName,
		eventDomain: eventDomain,
		severities:  make(map[string]int),
		routes:      make(map[string]*routeStats),
		errorStages: make(map[string]int),
	}
}

// ingest accepts a raw log line. Container log prefixes ending in "|" are
// stripped; lines that aren't JSON are counted as skipped.
func (c *collector) ingest(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if pipe := strings.Index(trimmed, "|"); pipe >= 0 && !strings.HasPrefix(trimmed, "{") {
		trimmed = strings.TrimSpace(trimmed[pipe+1:])
	}
	var rec logRecord
	if err := sonic.ConfigStd.UnmarshalFromString(trimmed, &rec); err != nil {
		c.skipped++
		return
	}
	if rec.EventName != c.eventName || (c.eventDomain != "" && rec.EventDomain != c.eventDomain) {
		return
	}
	c.add(rec)
}

func (c *collector) add(rec logRecord) {
	c.count++
	severity := strings.ToUpper(strings.TrimSpace(rec.SeverityText))
	if severity == "" {
		severity = "UNSPECIFIED"
	}
	c.severities[severity]++

	route, _ := rec.Attributes[attrRoute].(string)
	if route == "" {
		route = "unknown"
	}
	rs, ok := c.routes[route]
	if !ok {
		rs = &routeStats{statuses: make(map[int]int), total: newNumericStats()}
		c.routes[route] = rs
	}
	if status, ok := asFloat(rec.Attributes[attrStatusCode]); ok {
		rs.statuses[int(status)]++
	}
	if ms, ok := asFloat(rec.Attributes[attrTotalMs]); ok {
		rs.total.add(ms)
	}
	if stage, ok := rec.Attributes[attrErrorStage].(string); ok && stage != "" {
		c.errorStages[stage]++
	}
}

func (c *collector) summary() summaryOutput {
	routes := make(map[string]routeSummary, len(c.routes))
	for name, rs := range c.routes {
		statuses := make(map[string]int, len(rs.statuses))
		for code, n := range rs.statuses {
			statuses[strconv.Itoa(code)] = n
		}
		routes[name] = routeSummary{StatusCounts: statuses, TotalMs: rs.total.summary()}
	}
	out := summaryOutput{
		EventName:      c.eventName,
		EventDomain:    c.eventDomain,
		TotalEvents:    c.count,
		SeverityCounts: c.severities,
		Routes:         routes,
		SkippedLines:   c.skipped,
	}
	if len(c.errorStages) > 0 {
		out.ErrorStages = c.errorStages
	}
	return out
}

func (s summaryOutput) ShortString() string {
	return strings.Join([]string{
		"event=" + s.EventName,
		"total=" + strconv.Itoa(s.TotalEvents),
		"routes=" + strconv.Itoa(len(s.Routes)),
		"warn=" + strconv.Itoa(s.SeverityCounts["WARN"]),
		"error=" + strconv.Itoa(s.SeverityCounts["ERROR"]),
	}, " ")
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
