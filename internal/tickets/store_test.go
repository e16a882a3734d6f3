package tickets

import (
	"context"
	"testing"
	"time"
)

func seedStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if err := s.AddUser(ctx, "manager1", "Manager"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := s.AddUser(ctx, "eng1", "Engineer"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	jan := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2026, time.February, 5, 12, 0, 0, 0, time.UTC)
	rows := []Ticket{
		{Assignee: "eng1", Project: "Fiber Rollout", Team: "NOC", Region: "East", Status: StatusOpen, CreatedAt: jan},
		{Assignee: "eng1", Project: "Fiber Rollout", Team: "NOC", Region: "East", Status: StatusCompleted, CreatedAt: jan},
		{Assignee: "eng2", Project: "Fiber Rollout", Team: "Field Ops", Region: "West", Status: StatusCompleted, SLABreached: true, CreatedAt: jan},
		{Assignee: "eng2", Project: "Core Upgrade", Team: "Field Ops", Region: "West", Status: StatusSuspended, CreatedAt: feb},
		{Assignee: "eng3", Project: "Core Upgrade", Team: "NOC", Region: "East", Status: StatusPending, CreatedAt: feb},
	}
	for _, r := range rows {
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	return s
}

func TestSummaryManagerSeesAll(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	sum, err := s.Summary(context.Background(), Query{Username: "manager1"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTickets != 5 {
		t.Errorf("TotalTickets: got %d, want 5", sum.TotalTickets)
	}
	if sum.OpenTickets != 1 || sum.CompletedTickets != 2 || sum.SuspendedTickets != 1 || sum.PendingApproval != 1 {
		t.Errorf("counts: %+v", sum)
	}
	if sum.SLABreached != 1 {
		t.Errorf("SLABreached: got %d, want 1", sum.SLABreached)
	}
	if sum.CompletionRate != 40.0 {
		t.Errorf("CompletionRate: got %v, want 40.0", sum.CompletionRate)
	}
	if sum.UserRole != "Manager" {
		t.Errorf("UserRole: got %q", sum.UserRole)
	}
}

func TestSummaryEngineerSeesOwnOnly(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	sum, err := s.Summary(context.Background(), Query{Username: "eng1"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTickets != 2 {
		t.Errorf("TotalTickets: got %d, want 2 (own tickets only)", sum.TotalTickets)
	}
	if sum.CompletionRate != 50.0 {
		t.Errorf("CompletionRate: got %v, want 50.0", sum.CompletionRate)
	}
}

func TestSummaryUnknownUserDefaultsToEngineer(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	sum, err := s.Summary(context.Background(), Query{Username: "stranger"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTickets != 0 {
		t.Errorf("TotalTickets: got %d, want 0 for unknown user", sum.TotalTickets)
	}
	if sum.UserRole != "Engineer" {
		t.Errorf("UserRole: got %q, want Engineer", sum.UserRole)
	}
}

func TestSummaryNameFiltersPartialCaseInsensitive(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	sum, err := s.Summary(context.Background(), Query{Username: "manager1", Projects: "fiber"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTickets != 3 {
		t.Errorf("partial match: got %d tickets, want 3", sum.TotalTickets)
	}

	// Comma-separated values are OR-joined within a dimension.
	sum, err = s.Summary(context.Background(), Query{Username: "manager1", Projects: "FIBER, core"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTickets != 5 {
		t.Errorf("OR-joined match: got %d tickets, want 5", sum.TotalTickets)
	}

	// Dimensions are AND-joined across each other.
	sum, err = s.Summary(context.Background(), Query{Username: "manager1", Projects: "fiber", Teams: "noc"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTickets != 2 {
		t.Errorf("AND across dimensions: got %d tickets, want 2", sum.TotalTickets)
	}
}

func TestSummaryMonthYearFilter(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	sum, err := s.Summary(context.Background(), Query{Username: "manager1", Month: 1, Year: 2026})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTickets != 3 {
		t.Errorf("January 2026: got %d tickets, want 3", sum.TotalTickets)
	}
	if sum.DateRange != "January 2026" {
		t.Errorf("DateRange: got %q", sum.DateRange)
	}
}

func TestSummaryDateRangeOverridesMonth(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	sum, err := s.Summary(context.Background(), Query{
		Username: "manager1",
		Month:    1, Year: 2026, // ignored: explicit range wins
		DateFrom: "2026-02-01",
		DateTo:   "2026-02-28",
	})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTickets != 2 {
		t.Errorf("February range: got %d tickets, want 2", sum.TotalTickets)
	}
}

func TestSummaryBreakdown(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	sum, err := s.Summary(context.Background(), Query{Username: "manager1", IncludeBreakdown: true})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.ByRegion) != 2 {
		t.Fatalf("ByRegion: got %d rows, want 2", len(sum.ByRegion))
	}
	if sum.ByRegion[0].Name != "East" || sum.ByRegion[0].TotalTickets != 3 {
		t.Errorf("top region: %+v", sum.ByRegion[0])
	}
	if len(sum.ByProject) != 2 || len(sum.ByTeam) != 2 {
		t.Errorf("breakdowns: %d projects, %d teams", len(sum.ByProject), len(sum.ByTeam))
	}
}

func TestSummaryWithoutBreakdownOmitsRows(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	sum, err := s.Summary(context.Background(), Query{Username: "manager1"})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.ByRegion != nil || sum.ByProject != nil || sum.ByTeam != nil {
		t.Error("breakdown rows present without IncludeBreakdown")
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	s := seedStore(t)
	ctx := context.Background()

	regions, err := s.Lookup(ctx, "regions")
	if err != nil {
		t.Fatalf("Lookup regions: %v", err)
	}
	if len(regions.Values) != 2 || regions.Values[0] != "East" {
		t.Errorf("regions: %v", regions.Values)
	}

	statuses, err := s.Lookup(ctx, "statuses")
	if err != nil {
		t.Fatalf("Lookup statuses: %v", err)
	}
	if len(statuses.Values) != 4 {
		t.Errorf("statuses: %v", statuses.Values)
	}

	if _, err := s.Lookup(ctx, "colors"); err == nil {
		t.Error("Lookup with unknown kind: want error")
	}
}
