package tickets

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChartType selects how a chart is rendered by the frontend.
type ChartType string

const (
	ChartBar   ChartType = "bar"
	ChartDonut ChartType = "donut"
	ChartGauge ChartType = "gauge"
)

// Status colors shared with the frontend palette.
const (
	colorBlue   = "#3b82f6"
	colorGreen  = "#22c55e"
	colorOrange = "#f59e0b"
	colorPurple = "#8b5cf6"
	colorRed    = "#ef4444"
	colorSlate  = "#64748b"
)

// metricDef maps a metric name onto its display label, color and value
// derivation from a summary.
type metricDef struct {
	label string
	color string
	value func(*Summary) float64
}

// metricDefs covers both the raw counters and the derived complements
// (within_sla = total - breached, and so on).
var metricDefs = map[string]metricDef{
	"open":            {"Open", colorBlue, func(s *Summary) float64 { return float64(s.OpenTickets) }},
	"completed":       {"Completed", colorGreen, func(s *Summary) float64 { return float64(s.CompletedTickets) }},
	"suspended":       {"Suspended", colorOrange, func(s *Summary) float64 { return float64(s.SuspendedTickets) }},
	"pending":         {"Pending Approval", colorPurple, func(s *Summary) float64 { return float64(s.PendingApproval) }},
	"breached":        {"SLA Breached", colorRed, func(s *Summary) float64 { return float64(s.SLABreached) }},
	"within_sla":      {"Within SLA", colorGreen, func(s *Summary) float64 { return float64(s.TotalTickets - s.SLABreached) }},
	"non_suspended":   {"Non-Suspended", colorGreen, func(s *Summary) float64 { return float64(s.TotalTickets - s.SuspendedTickets) }},
	"non_open":        {"Non-Open", colorGreen, func(s *Summary) float64 { return float64(s.TotalTickets - s.OpenTickets) }},
	"remaining":       {"Remaining", colorOrange, func(s *Summary) float64 { return float64(s.TotalTickets - s.CompletedTickets) }},
	"total":           {"Total", colorBlue, func(s *Summary) float64 { return float64(s.TotalTickets) }},
	"completion_rate": {"Completion Rate", colorBlue, func(s *Summary) float64 { return s.CompletionRate }},
}

// ChartPoint is one category in a rendered chart.
type ChartPoint struct {
	Category string  `json:"category"`
	Count    float64 `json:"count"`
	Color    string  `json:"color"`
}

// ChartSpec is the renderer-facing chart configuration serialized between
// the CHART_START and CHART_END markers.
type ChartSpec struct {
	Type        ChartType    `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Data        []ChartPoint `json:"data,omitempty"`

	// Gauge-only fields.
	Value      float64          `json:"value,omitempty"`
	MaxValue   float64          `json:"maxValue,omitempty"`
	Target     float64          `json:"target,omitempty"`
	Thresholds []GaugeThreshold `json:"thresholds,omitempty"`
}

// GaugeThreshold is one colored band on a gauge.
type GaugeThreshold struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
	Label string  `json:"label"`
}

const (
	chartStartMarker = "<!--CHART_START-->"
	chartEndMarker   = "<!--CHART_END-->"

	// defaultTargetRate is the completion-rate target rendered on gauges.
	defaultTargetRate = 80.0
)

// BuildChart constructs a chart from a previously fetched summary and the
// requested metric names. Unknown metric names are skipped; a request with
// no valid metrics is an error. A lone completion_rate metric always renders
// as a gauge regardless of the requested type.
func BuildChart(sum *Summary, metrics []string, chartType ChartType, title string) (*ChartSpec, error) {
	if sum == nil {
		return nil, fmt.Errorf("tickets: no summary to chart")
	}
	if chartType == ChartGauge || (len(metrics) == 1 && normalizeMetric(metrics[0]) == "completion_rate") {
		return buildGauge(sum, title), nil
	}

	var points []ChartPoint
	for _, m := range metrics {
		def, ok := metricDefs[normalizeMetric(m)]
		if !ok {
			continue
		}
		points = append(points, ChartPoint{
			Category: def.label,
			Count:    def.value(sum),
			Color:    def.color,
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("tickets: no valid metrics to chart")
	}
	if chartType != ChartBar && chartType != ChartDonut {
		chartType = ChartDonut
	}

	return &ChartSpec{
		Type:        chartType,
		Title:       title,
		Description: describeChart(points, sum.TotalTickets),
		Data:        points,
	}, nil
}

func buildGauge(sum *Summary, title string) *ChartSpec {
	if title == "" {
		title = "Completion Rate"
	}
	return &ChartSpec{
		Type:        ChartGauge,
		Title:       title,
		Description: fmt.Sprintf("Current completion rate vs target of %.0f%%", defaultTargetRate),
		Value:       sum.CompletionRate,
		MaxValue:    100,
		Target:      defaultTargetRate,
		Thresholds: []GaugeThreshold{
			{Value: 40, Color: colorRed, Label: "Critical"},
			{Value: 70, Color: colorOrange, Label: "Warning"},
			{Value: 100, Color: colorGreen, Label: "Good"},
		},
	}
}

func describeChart(points []ChartPoint, total int) string {
	if len(points) == 2 && total > 0 {
		a, b := points[0], points[1]
		return fmt.Sprintf("%s: %.0f (%.1f%%) vs %s: %.0f (%.1f%%)",
			a.Category, a.Count, a.Count/float64(total)*100,
			b.Category, b.Count, b.Count/float64(total)*100)
	}
	return fmt.Sprintf("Distribution across %d categories (Total: %d)", len(points), total)
}

func normalizeMetric(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "-", "_")
}

// HTML renders the chart as the marker-delimited JSON block the frontend
// detects, followed by a short text caption.
func (c *ChartSpec) HTML() string {
	payload, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		// A ChartSpec contains only marshalable fields; this cannot happen.
		return ""
	}
	var b strings.Builder
	b.WriteString(chartStartMarker)
	b.WriteString("\n")
	b.Write(payload)
	b.WriteString("\n")
	b.WriteString(chartEndMarker)
	b.WriteString("\n\n<p><em>")
	b.WriteString(c.Title)
	b.WriteString("</em></p>")
	if c.Description != "" {
		b.WriteString("\n<p>")
		b.WriteString(c.Description)
		b.WriteString("</p>")
	}
	return b.String()
}
