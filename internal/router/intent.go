package router

import (
	"regexp"
	"strings"
	"unicode"
)

// Intent is the handler a turn is dispatched to.
type Intent string

const (
	// IntentGreeting answers salutations with a canned welcome.
	IntentGreeting Intent = "greeting"
	// IntentMetricsQA answers ticket metrics questions from the database.
	IntentMetricsQA Intent = "metrics_qa"
	// IntentDocumentQA answers everything else from the document corpus.
	IntentDocumentQA Intent = "document_qa"
)

// greetingWords are the salutations recognized in English and Arabic
// (romanized and script forms).
var greetingWords = []string{
	"hi", "hello", "hey", "hiya", "welcome",
	"good morning", "good afternoon", "good evening",
	"marhaba", "ahlan wa sahlan", "ahlan", "salam", "hala",
	"assalamu alaikum", "assalam alaikum",
	"مرحبا", "أهلا وسهلا", "أهلا", "اهلا", "السلام عليكم", "هلا",
}

// metricsKeywords route a turn to the metrics handler. Vocabulary-based and
// deliberately narrow: platform questions that merely mention a project name
// must still reach the document handler.
var metricsKeywords = []string{
	"ticket", "tickets", "workload", "sla", "breach", "breached",
	"completion rate", "pending approval", "suspended",
	"chart", "graph", "plot", "visualize", "visualise", "visualization",
	"gauge", "donut", "bar chart", "pie chart",
}

// lookupPattern matches requests for the selectable filter values
// ("what regions are there", "list the teams", "show available projects").
var lookupPattern = regexp.MustCompile(`(?i)\b(list|show|what|which|available)\b.*\b(regions?|teams?|projects?|statuses)\b`)

// Classify determines the intent for the cleaned turn text (filter tags
// already stripped). Rules apply first-match-wins: greeting, then metrics,
// then the document default. Deterministic by construction.
func Classify(text string) Intent {
	norm := normalizeText(text)
	if norm == "" {
		return IntentDocumentQA
	}
	if isGreeting(norm) {
		return IntentGreeting
	}
	if isMetrics(norm) {
		return IntentMetricsQA
	}
	return IntentDocumentQA
}

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// isGreeting recognizes short messages that begin with a salutation. A long
// message that happens to open with "hi" is a real question, not a greeting.
func isGreeting(norm string) bool {
	stripped := strings.TrimRightFunc(norm, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '!' || r == '؟'
	})
	if len([]rune(stripped)) > 30 {
		return false
	}
	for _, w := range greetingWords {
		if stripped == w {
			return true
		}
		if strings.HasPrefix(stripped, w+" ") {
			rest := strings.TrimPrefix(stripped, w+" ")
			// Allow a short addressee ("hi there", "marhaba oip assistant").
			if len([]rune(rest)) <= 15 && !strings.ContainsAny(rest, "?") {
				return true
			}
		}
	}
	return false
}

func isMetrics(norm string) bool {
	for _, kw := range metricsKeywords {
		if containsWord(norm, kw) {
			return true
		}
	}
	return lookupPattern.MatchString(norm)
}

// containsWord reports whether phrase occurs in text on word boundaries, so
// "sla" does not match inside "islands".
func containsWord(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordRune(rune(text[start-1]))
		afterOK := end == len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
