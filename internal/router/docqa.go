package router

import (
	"context"
	"errors"

	"github.com/ebttikar/oip-assistant/internal/logging"
	"github.com/ebttikar/oip-assistant/internal/rag"
	"github.com/ebttikar/oip-assistant/internal/stream"
)

// documentAnswer runs the retrieval-augmented path: embed the question,
// search the index, and generate an answer grounded in the retrieved
// context. Every failure mode maps to a safe answer so the turn still
// completes its protocol.
func (r *Router) documentAnswer(ctx context.Context, question string, em stream.Emitter) string {
	log := logging.FromContext(ctx)

	if err := em.Status(statusSearching); err != nil {
		log.Warn("status frame dropped", "error", err)
	}

	res := r.retriever.Retrieve(ctx, question)
	switch res.Outcome {
	case rag.OutcomeNoResults:
		return noResultsAnswer(res.Query)
	case rag.OutcomeError:
		if errors.Is(res.Err, rag.ErrIndexUnavailable) {
			log.Warn("document question before index load")
			return indexUnavailableAnswer
		}
		log.Error("retrieval failed", "error", res.Err)
		return errorAnswer("document search failed")
	}

	if err := em.Status(statusGenerating); err != nil {
		log.Warn("status frame dropped", "error", err)
	}

	answer, err := r.gateway.Complete(ctx, documentQASystem, documentQAPrompt(res.Context, question))
	if err != nil {
		log.Error("completion failed", "error", err)
		return errorAnswer("answer generation failed")
	}
	return answer
}
