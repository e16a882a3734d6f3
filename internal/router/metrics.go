package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebttikar/oip-assistant/internal/logging"
	"github.com/ebttikar/oip-assistant/internal/session"
	"github.com/ebttikar/oip-assistant/internal/stream"
	"github.com/ebttikar/oip-assistant/internal/tickets"
)

// chartVerbs indicate the user wants a visualization.
var chartVerbs = []string{"chart", "graph", "plot", "visualize", "visualise", "gauge", "donut", "pie"}

// previousRefs indicate the question is about the last result rather than a
// fresh query ("chart the above").
var previousRefs = []string{"the above", "above data", "that data", "this data", "previous", "earlier", "you showed", "last result"}

// metricsAnswer runs the ticket metrics path: lookups, fresh summaries and
// charts over either fresh or cached data.
func (r *Router) metricsAnswer(ctx context.Context, sess *session.Session, text string, filters session.Filters, em stream.Emitter) string {
	log := logging.FromContext(ctx)
	norm := normalizeText(text)

	if r.tickets == nil {
		return "Ticket metrics are not available on this deployment. I can still answer OIP platform questions."
	}

	if kind := lookupKind(norm); kind != "" {
		return r.lookupAnswer(ctx, kind)
	}

	wantChart := containsAny(norm, chartVerbs)

	// "Chart the above" reuses the cached summary instead of re-querying.
	if wantChart && containsAny(norm, previousRefs) {
		kind, last := r.sessions.LastResult(sess)
		sum, ok := last.(*tickets.Summary)
		if kind != session.ResultTicketSummary || !ok {
			return `No previous ticket data found in this session.

Please ask for ticket data first (e.g., "What are my tickets?"), then I can create a chart for you.`
		}
		if err := em.Status(statusCharting); err != nil {
			log.Warn("status frame dropped", "error", err)
		}
		return r.chartAnswer(sum, norm)
	}

	if err := em.Status(statusFetching); err != nil {
		log.Warn("status frame dropped", "error", err)
	}

	tr := parseTimeRange(norm, r.now())
	q := tickets.Query{
		Username:         sess.Username,
		Projects:         session.Canonical(filters.Projects),
		Teams:            session.Canonical(filters.Teams),
		Regions:          session.Canonical(filters.Regions),
		Month:            tr.Month,
		Year:             tr.Year,
		DateFrom:         tr.DateFrom,
		DateTo:           tr.DateTo,
		IncludeBreakdown: wantsBreakdown(norm),
	}

	sum, err := r.tickets.Summary(ctx, q)
	if err != nil {
		log.Error("ticket summary failed", "error", err)
		return errorAnswer("ticket metrics lookup failed")
	}
	r.sessions.SetLastResult(sess, session.ResultTicketSummary, sum)

	if wantChart {
		if err := em.Status(statusCharting); err != nil {
			log.Warn("status frame dropped", "error", err)
		}
		return r.chartAnswer(sum, norm)
	}
	return formatSummary(sum)
}

// chartAnswer selects metrics from the question vocabulary and renders the
// chart block followed by the text summary.
func (r *Router) chartAnswer(sum *tickets.Summary, norm string) string {
	metrics, chartType, title := selectChartMetrics(norm)
	spec, err := tickets.BuildChart(sum, metrics, chartType, title)
	if err != nil {
		return errorAnswer("chart generation failed")
	}
	return spec.HTML() + "\n\n" + formatSummary(sum)
}

// selectChartMetrics maps question vocabulary onto chart metrics. The rules
// mirror the summary's derived metrics: asking about suspensions yields the
// suspended/non-suspended split, SLA questions the breached/within split.
func selectChartMetrics(norm string) (metrics []string, chartType tickets.ChartType, title string) {
	switch {
	case strings.Contains(norm, "completion rate"):
		return []string{"completion_rate"}, tickets.ChartGauge, "Completion Rate"
	case strings.Contains(norm, "suspend"):
		return []string{"suspended", "non_suspended"}, tickets.ChartBar, "Suspended Tickets Analysis"
	case strings.Contains(norm, "sla"), strings.Contains(norm, "breach"):
		return []string{"breached", "within_sla"}, tickets.ChartBar, "SLA Breach Analysis"
	case strings.Contains(norm, "remaining"):
		return []string{"completed", "remaining"}, tickets.ChartBar, "Remaining Work"
	case strings.Contains(norm, "open") && strings.Contains(norm, "completed"):
		return []string{"open", "completed"}, tickets.ChartBar, "Open vs Completed Tickets"
	default:
		return []string{"open", "completed", "suspended", "pending"}, tickets.ChartDonut, "Ticket Status Distribution"
	}
}

// lookupKind returns the lookup dimension a question asks for, or "".
func lookupKind(norm string) string {
	if !lookupPattern.MatchString(norm) {
		return ""
	}
	// "my tickets by region" is a summary request, not a lookup.
	if strings.Contains(norm, "my ") || strings.Contains(norm, "ticket") {
		return ""
	}
	switch {
	case strings.Contains(norm, "region"):
		return "regions"
	case strings.Contains(norm, "team"):
		return "teams"
	case strings.Contains(norm, "project"):
		return "projects"
	case strings.Contains(norm, "status"):
		return "statuses"
	}
	return ""
}

func (r *Router) lookupAnswer(ctx context.Context, kind string) string {
	log := logging.FromContext(ctx)
	lk, err := r.tickets.Lookup(ctx, kind)
	if err != nil {
		log.Error("lookup failed", "kind", kind, "error", err)
		return errorAnswer("lookup failed")
	}
	if len(lk.Values) == 0 {
		return fmt.Sprintf("No %s are recorded yet.", lk.Kind)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Available %s:\n", lk.Kind)
	for _, v := range lk.Values {
		b.WriteString("- ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func wantsBreakdown(norm string) bool {
	return strings.Contains(norm, "breakdown") ||
		strings.Contains(norm, "by region") ||
		strings.Contains(norm, "by project") ||
		strings.Contains(norm, "by team") ||
		strings.Contains(norm, "per region") ||
		strings.Contains(norm, "per project") ||
		strings.Contains(norm, "per team")
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// formatSummary renders a summary as the plain-text answer body.
func formatSummary(s *tickets.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here is your ticket summary (%s):\n", s.DateRange)
	fmt.Fprintf(&b, "- Total tickets: %d\n", s.TotalTickets)
	fmt.Fprintf(&b, "- Open: %d\n", s.OpenTickets)
	fmt.Fprintf(&b, "- Completed: %d\n", s.CompletedTickets)
	fmt.Fprintf(&b, "- Suspended: %d\n", s.SuspendedTickets)
	fmt.Fprintf(&b, "- Pending approval: %d\n", s.PendingApproval)
	fmt.Fprintf(&b, "- Completion rate: %.1f%%\n", s.CompletionRate)
	if s.SLABreached > 0 {
		fmt.Fprintf(&b, "- SLA breached: %d — these need attention\n", s.SLABreached)
	}

	var scopes []string
	if s.ProjectFilter != "" {
		scopes = append(scopes, "projects: "+s.ProjectFilter)
	}
	if s.TeamFilter != "" {
		scopes = append(scopes, "teams: "+s.TeamFilter)
	}
	if s.RegionFilter != "" {
		scopes = append(scopes, "regions: "+s.RegionFilter)
	}
	if len(scopes) > 0 {
		fmt.Fprintf(&b, "\nActive filters — %s\n", strings.Join(scopes, "; "))
	}

	appendBreakdown(&b, "region", s.ByRegion)
	appendBreakdown(&b, "project", s.ByProject)
	appendBreakdown(&b, "team", s.ByTeam)
	return strings.TrimRight(b.String(), "\n")
}

func appendBreakdown(b *strings.Builder, dim string, rows []tickets.BreakdownRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(b, "\nBy %s:\n", dim)
	for _, row := range rows {
		fmt.Fprintf(b, "- %s: %d total (%d open, %d completed)\n",
			row.Name, row.TotalTickets, row.OpenTickets, row.CompletedTickets)
	}
}
