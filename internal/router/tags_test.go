package router

import (
	"strings"
	"testing"

	"github.com/ebttikar/oip-assistant/internal/session"
)

func TestApplyTags(t *testing.T) {
	t.Parallel()

	got := ApplyTags("show my tickets", session.Filters{
		Teams:    []string{"Maintenance"},
		Projects: []string{"Fiber Rollout", "Core Upgrade"},
	})
	want := "[ACTIVE_TEAM_FILTER: Maintenance] [ACTIVE_PROJECT_FILTER: Fiber Rollout,Core Upgrade] show my tickets"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestApplyTagsNoFilters(t *testing.T) {
	t.Parallel()

	if got := ApplyTags("hello", session.Filters{}); got != "hello" {
		t.Errorf("got %q, want unchanged text", got)
	}
}

func TestExtractTags(t *testing.T) {
	t.Parallel()

	clean, f := ExtractTags("[ACTIVE_TEAM_FILTER: Maintenance] [ACTIVE_REGION_FILTER: Riyadh,Jeddah] fetch my tickets")
	if clean != "fetch my tickets" {
		t.Errorf("clean: got %q", clean)
	}
	if len(f.Teams) != 1 || f.Teams[0] != "Maintenance" {
		t.Errorf("Teams: %v", f.Teams)
	}
	if len(f.Regions) != 2 || f.Regions[1] != "Jeddah" {
		t.Errorf("Regions: %v", f.Regions)
	}
	if f.Projects != nil {
		t.Errorf("Projects should be nil, got %v", f.Projects)
	}
}

func TestTagsRoundTrip(t *testing.T) {
	t.Parallel()

	in := session.Filters{Projects: []string{"Alpha"}, Regions: []string{"East"}}
	tagged := ApplyTags("what is my workload?", in)
	clean, out := ExtractTags(tagged)
	if clean != "what is my workload?" {
		t.Errorf("clean: got %q", clean)
	}
	if session.Canonical(out.Projects) != "Alpha" || session.Canonical(out.Regions) != "East" {
		t.Errorf("filters lost in round trip: %+v", out)
	}
	if strings.Contains(clean, "ACTIVE_") {
		t.Errorf("tag leaked into clean text: %q", clean)
	}
}
