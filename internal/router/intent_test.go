package router

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"english hello", "hello", IntentGreeting},
		{"hi with punctuation", "Hi!", IntentGreeting},
		{"hey there", "hey there", IntentGreeting},
		{"good morning", "Good morning", IntentGreeting},
		{"romanized arabic", "marhaba", IntentGreeting},
		{"ahlan wa sahlan", "Ahlan wa sahlan", IntentGreeting},
		{"arabic script", "مرحبا", IntentGreeting},
		{"salam", "salam", IntentGreeting},

		{"greeting prefix on real question is not greeting", "hi, how do I configure SLA alerts in OIP?", IntentMetricsQA},
		{"long message starting with hello", "hello I would like to understand how the platform handles escalations", IntentDocumentQA},

		{"my tickets", "what are my tickets?", IntentMetricsQA},
		{"workload", "show me my workload", IntentMetricsQA},
		{"sla keyword", "any SLA breaches this month?", IntentMetricsQA},
		{"chart request", "chart the above", IntentMetricsQA},
		{"completion rate", "what's our completion rate?", IntentMetricsQA},
		{"lookup regions", "what regions are available?", IntentMetricsQA},
		{"lookup teams", "list the teams", IntentMetricsQA},

		{"platform question", "how does OIP handle user provisioning?", IntentDocumentQA},
		{"sow question", "what does the SOW say about data retention?", IntentDocumentQA},
		{"sla not matched inside word", "tell me about islands in the architecture", IntentDocumentQA},
		{"empty", "", IntentDocumentQA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q): got %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	t.Parallel()

	inputs := []string{"hello", "what are my tickets?", "explain the OIP reporting module"}
	for _, in := range inputs {
		first := Classify(in)
		for i := 0; i < 10; i++ {
			if got := Classify(in); got != first {
				t.Fatalf("Classify(%q) unstable: %q then %q", in, first, got)
			}
		}
	}
}

func TestClassifyIgnoresTags(t *testing.T) {
	t.Parallel()

	clean, _ := ExtractTags("[ACTIVE_TEAM_FILTER: NOC] hello")
	if got := Classify(clean); got != IntentGreeting {
		t.Errorf("tagged greeting: got %q, want greeting", got)
	}
}
