package router

import (
	"context"
	"time"
	"unicode"

	"github.com/ebttikar/oip-assistant/internal/completion"
	"github.com/ebttikar/oip-assistant/internal/logging"
	"github.com/ebttikar/oip-assistant/internal/rag"
	"github.com/ebttikar/oip-assistant/internal/session"
	"github.com/ebttikar/oip-assistant/internal/stream"
	"github.com/ebttikar/oip-assistant/internal/tickets"
)

// Router dispatches one turn to the handler selected by Classify and emits
// the turn's frames. Handler failures are folded into safe answers; Respond
// itself only fails on emitter errors.
type Router struct {
	retriever *rag.Retriever
	gateway   completion.Gateway
	tickets   tickets.Store
	sessions  *session.Store

	// now is injectable for deterministic time-range parsing in tests.
	now func() time.Time
}

// New wires the three handlers' dependencies into a router. tickets may be
// nil when no metrics database is configured; metrics questions then get a
// clear unavailable answer.
func New(retriever *rag.Retriever, gateway completion.Gateway, ticketStore tickets.Store, sessions *session.Store) *Router {
	return &Router{
		retriever: retriever,
		gateway:   gateway,
		tickets:   ticketStore,
		sessions:  sessions,
		now:       time.Now,
	}
}

// Respond processes one turn: it strips filter tags, classifies the text,
// runs the matching handler and emits status frames, exactly one answer
// frame and the terminal done frame. The done frame is emitted even when the
// handler fails. Callers must hold the session's turn lock.
func (r *Router) Respond(ctx context.Context, sess *session.Session, rawText string, em stream.Emitter) (Intent, error) {
	log := logging.FromContext(ctx)

	clean, tagFilters := ExtractTags(rawText)
	filters := sess.Filters.Merge(tagFilters)
	intent := Classify(clean)

	log.Debug("turn classified",
		"session_id", sess.ID,
		"intent", string(intent),
	)

	var answer string
	switch intent {
	case IntentGreeting:
		answer = r.greet(clean)
	case IntentMetricsQA:
		answer = r.metricsAnswer(ctx, sess, clean, filters, em)
	default:
		answer = r.documentAnswer(ctx, clean, em)
	}

	if err := em.Answer(answer); err != nil {
		return intent, err
	}

	// Both messages are committed only after the answer is delivered, so an
	// abandoned turn leaves the transcript untouched.
	if err := r.sessions.AppendMessage(ctx, sess, session.RoleUser, clean); err != nil {
		log.Warn("failed to persist user message", "error", err)
	}
	if err := r.sessions.AppendMessage(ctx, sess, session.RoleAssistant, answer); err != nil {
		log.Warn("failed to persist assistant message", "error", err)
	}
	return intent, em.Done()
}

// greet responds in the language of the salutation.
func (r *Router) greet(text string) string {
	if containsArabic(text) {
		return greetingArabic
	}
	return greetingEnglish
}

func containsArabic(text string) bool {
	for _, ru := range text {
		if unicode.Is(unicode.Arabic, ru) {
			return true
		}
	}
	return false
}
