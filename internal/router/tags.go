// Package router classifies incoming turns and dispatches them to the
// greeting, document-QA or metrics-QA handler, emitting protocol frames for
// the chosen path. Classification is rule-based and deterministic: the same
// text always routes the same way.
package router

import (
	"regexp"
	"strings"

	"github.com/ebttikar/oip-assistant/internal/session"
)

// Filter tags are prefixed to the turn text on the way in so the active
// scope travels with the message, and stripped before classification and
// prompting so they never leak into answers.
const (
	tagProject = "ACTIVE_PROJECT_FILTER"
	tagTeam    = "ACTIVE_TEAM_FILTER"
	tagRegion  = "ACTIVE_REGION_FILTER"
)

var tagPattern = regexp.MustCompile(`\[(ACTIVE_PROJECT_FILTER|ACTIVE_TEAM_FILTER|ACTIVE_REGION_FILTER):\s*([^\]]*)\]`)

// ApplyTags prefixes the canonical filter tags for f onto text. Empty
// dimensions produce no tag.
func ApplyTags(text string, f session.Filters) string {
	var tags []string
	if v := session.Canonical(f.Teams); v != "" {
		tags = append(tags, "["+tagTeam+": "+v+"]")
	}
	if v := session.Canonical(f.Projects); v != "" {
		tags = append(tags, "["+tagProject+": "+v+"]")
	}
	if v := session.Canonical(f.Regions); v != "" {
		tags = append(tags, "["+tagRegion+": "+v+"]")
	}
	if len(tags) == 0 {
		return text
	}
	return strings.Join(tags, " ") + " " + text
}

// ExtractTags removes all filter tags from text and returns the cleaned text
// together with the filters the tags carried. Tag values are comma-separated
// name lists.
func ExtractTags(text string) (string, session.Filters) {
	var f session.Filters
	clean := tagPattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := tagPattern.FindStringSubmatch(m)
		values := splitNames(parts[2])
		switch parts[1] {
		case tagProject:
			f.Projects = values
		case tagTeam:
			f.Teams = values
		case tagRegion:
			f.Regions = values
		}
		return ""
	})
	return strings.TrimSpace(clean), f
}

func splitNames(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
