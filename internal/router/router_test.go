package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ebttikar/oip-assistant/internal/rag"
	"github.com/ebttikar/oip-assistant/internal/session"
	"github.com/ebttikar/oip-assistant/internal/stream"
	"github.com/ebttikar/oip-assistant/internal/tickets"
)

// fixedEmbedder returns the same vector for every text.
type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// fakeGateway records prompts and returns a canned answer.
type fakeGateway struct {
	answer  string
	err     error
	calls   int
	lastRaw string
}

func (f *fakeGateway) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastRaw = user
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fakeTickets counts Summary calls and returns a fixed summary.
type fakeTickets struct {
	sum          *tickets.Summary
	err          error
	summaryCalls int
	lastQuery    tickets.Query
}

func (f *fakeTickets) Summary(ctx context.Context, q tickets.Query) (*tickets.Summary, error) {
	f.summaryCalls++
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.sum, nil
}

func (f *fakeTickets) Lookup(ctx context.Context, kind string) (*tickets.Lookups, error) {
	return &tickets.Lookups{Kind: kind, Values: []string{"East", "West"}}, nil
}

func (f *fakeTickets) Ping(ctx context.Context) error { return nil }
func (f *fakeTickets) Close() error                   { return nil }

func loadedIndex(t *testing.T) *rag.FlatIndex {
	t.Helper()
	idx := rag.NewFlatIndex(t.TempDir())
	idx.Create(2)
	chunk := rag.Chunk{
		Text:     "OIP supports automated ticket escalation with configurable thresholds.",
		Metadata: rag.ChunkMetadata{Source: "features.md", TotalInSource: 1},
	}
	if err := idx.Add(context.Background(), []rag.Chunk{chunk}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return idx
}

func newTestRouter(t *testing.T, idx *rag.FlatIndex, gw *fakeGateway, tk tickets.Store) (*Router, *session.Store, *session.Session) {
	t.Helper()
	sessions := session.NewStore(nil)
	sess, err := sessions.Create(context.Background(), "jdoe", "Engineer", "ENG")
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	retriever := rag.NewRetriever(&fixedEmbedder{vec: []float32{1, 0}}, idx, 5, 0.3)
	r := New(retriever, gw, tk, sessions)
	r.now = func() time.Time { return time.Date(2026, time.March, 18, 10, 0, 0, 0, time.UTC) }
	return r, sessions, sess
}

func frameTypes(frames []stream.Frame) []stream.FrameType {
	out := make([]stream.FrameType, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func assertProtocol(t *testing.T, b *stream.Buffer) {
	t.Helper()
	frames := b.Frames()
	if len(frames) == 0 {
		t.Fatal("no frames emitted")
	}
	if frames[len(frames)-1].Type != stream.FrameDone {
		t.Errorf("last frame: got %q, want done (%v)", frames[len(frames)-1].Type, frameTypes(frames))
	}
	answers := 0
	for i, f := range frames {
		switch f.Type {
		case stream.FrameAnswer:
			answers++
		case stream.FrameStatus:
			if answers > 0 {
				t.Errorf("status frame %d after answer", i)
			}
		}
	}
	if answers != 1 {
		t.Errorf("got %d answer frames, want exactly 1 (%v)", answers, frameTypes(b.Frames()))
	}
}

func TestRespondGreeting(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{answer: "unused"}
	r, _, sess := newTestRouter(t, loadedIndex(t), gw, &fakeTickets{})

	b := stream.NewBuffer()
	intent, err := r.Respond(context.Background(), sess, "hello", b)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if intent != IntentGreeting {
		t.Errorf("intent: got %q", intent)
	}
	assertProtocol(t, b)
	if !strings.Contains(b.AnswerText(), "Welcome") {
		t.Errorf("greeting answer: %q", b.AnswerText())
	}
	if gw.calls != 0 {
		t.Errorf("greeting hit the completion gateway %d times", gw.calls)
	}
}

func TestRespondGreetingArabic(t *testing.T) {
	t.Parallel()

	r, _, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{}, &fakeTickets{})
	b := stream.NewBuffer()
	if _, err := r.Respond(context.Background(), sess, "مرحبا", b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(b.AnswerText(), "مرحبا") {
		t.Errorf("arabic greeting answered in wrong language: %q", b.AnswerText())
	}
}

func TestRespondDocumentQA(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{answer: "OIP escalates tickets automatically once thresholds are crossed."}
	r, _, sess := newTestRouter(t, loadedIndex(t), gw, &fakeTickets{})

	b := stream.NewBuffer()
	intent, err := r.Respond(context.Background(), sess, "how does escalation work?", b)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if intent != IntentDocumentQA {
		t.Errorf("intent: got %q", intent)
	}
	assertProtocol(t, b)
	if b.AnswerText() != gw.answer {
		t.Errorf("answer: got %q", b.AnswerText())
	}
	if gw.calls != 1 {
		t.Errorf("gateway calls: got %d, want 1", gw.calls)
	}
	if !strings.Contains(gw.lastRaw, "RETRIEVED_CONTEXT") {
		t.Error("prompt missing retrieved context block")
	}

	var statuses []string
	for _, f := range b.Frames() {
		if f.Type == stream.FrameStatus {
			statuses = append(statuses, f.Message)
		}
	}
	if len(statuses) != 2 {
		t.Errorf("status frames: %v", statuses)
	}
}

func TestRespondDocumentQANoResults(t *testing.T) {
	t.Parallel()

	idx := rag.NewFlatIndex(t.TempDir())
	idx.Create(2) // loaded but empty
	gw := &fakeGateway{answer: "unused"}
	r, _, sess := newTestRouter(t, idx, gw, &fakeTickets{})

	b := stream.NewBuffer()
	if _, err := r.Respond(context.Background(), sess, "how does escalation work?", b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	assertProtocol(t, b)
	if !strings.Contains(b.AnswerText(), "couldn't find specific information") {
		t.Errorf("no-results answer: %q", b.AnswerText())
	}
	if gw.calls != 0 {
		t.Error("completion called despite empty retrieval")
	}
}

func TestRespondDocumentQAIndexUnavailable(t *testing.T) {
	t.Parallel()

	idx := rag.NewFlatIndex(t.TempDir()) // never created
	r, _, sess := newTestRouter(t, idx, &fakeGateway{}, &fakeTickets{})

	b := stream.NewBuffer()
	if _, err := r.Respond(context.Background(), sess, "how does escalation work?", b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	assertProtocol(t, b)
	if !strings.Contains(b.AnswerText(), "not ready") {
		t.Errorf("unavailable answer: %q", b.AnswerText())
	}
}

func TestRespondDocumentQAGatewayFailureStillCompletes(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: errors.New("upstream 502")}
	r, _, sess := newTestRouter(t, loadedIndex(t), gw, &fakeTickets{})

	b := stream.NewBuffer()
	if _, err := r.Respond(context.Background(), sess, "how does escalation work?", b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	assertProtocol(t, b)
	if !strings.Contains(b.AnswerText(), "encountered an issue") {
		t.Errorf("error answer: %q", b.AnswerText())
	}
	if strings.Contains(b.AnswerText(), "502") {
		t.Error("internal error detail leaked into answer")
	}
}

func TestRespondMetricsFreshQuery(t *testing.T) {
	t.Parallel()

	tk := &fakeTickets{sum: &tickets.Summary{
		TotalTickets: 12, OpenTickets: 5, CompletedTickets: 6, SuspendedTickets: 1,
		CompletionRate: 50.0, SLABreached: 2, DateRange: "all time",
	}}
	r, _, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{}, tk)

	b := stream.NewBuffer()
	intent, err := r.Respond(context.Background(), sess, "what are my tickets?", b)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if intent != IntentMetricsQA {
		t.Errorf("intent: got %q", intent)
	}
	assertProtocol(t, b)
	if tk.summaryCalls != 1 {
		t.Errorf("Summary calls: got %d, want 1", tk.summaryCalls)
	}
	if tk.lastQuery.Username != "jdoe" {
		t.Errorf("query username: got %q", tk.lastQuery.Username)
	}
	answer := b.AnswerText()
	if !strings.Contains(answer, "Total tickets: 12") || !strings.Contains(answer, "50.0%") {
		t.Errorf("summary answer: %q", answer)
	}
	if !strings.Contains(answer, "SLA breached: 2") {
		t.Errorf("SLA warning missing: %q", answer)
	}
}

func TestRespondMetricsFilterTagsReachQueryButNotAnswer(t *testing.T) {
	t.Parallel()

	tk := &fakeTickets{sum: &tickets.Summary{TotalTickets: 3, DateRange: "all time", ProjectFilter: "Fiber"}}
	r, _, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{}, tk)

	b := stream.NewBuffer()
	raw := "[ACTIVE_PROJECT_FILTER: Fiber] show my tickets"
	if _, err := r.Respond(context.Background(), sess, raw, b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if tk.lastQuery.Projects != "Fiber" {
		t.Errorf("project filter not forwarded: %q", tk.lastQuery.Projects)
	}
	if strings.Contains(b.AnswerText(), "ACTIVE_") {
		t.Errorf("filter tag leaked into answer: %q", b.AnswerText())
	}
}

func TestRespondChartTheAboveUsesCache(t *testing.T) {
	t.Parallel()

	tk := &fakeTickets{sum: &tickets.Summary{
		TotalTickets: 20, OpenTickets: 6, CompletedTickets: 10,
		SuspendedTickets: 3, PendingApproval: 1, CompletionRate: 50.0, DateRange: "all time",
	}}
	r, _, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{}, tk)
	ctx := context.Background()

	// First turn fetches and caches.
	b1 := stream.NewBuffer()
	if _, err := r.Respond(ctx, sess, "what are my tickets?", b1); err != nil {
		t.Fatalf("first Respond: %v", err)
	}
	if tk.summaryCalls != 1 {
		t.Fatalf("Summary calls after first turn: %d", tk.summaryCalls)
	}

	// Follow-up charts the cached data without a second query.
	b2 := stream.NewBuffer()
	if _, err := r.Respond(ctx, sess, "chart the above", b2); err != nil {
		t.Fatalf("second Respond: %v", err)
	}
	assertProtocol(t, b2)
	if tk.summaryCalls != 1 {
		t.Errorf("chart-the-above re-queried the store: %d calls", tk.summaryCalls)
	}
	if !strings.Contains(b2.AnswerText(), "<!--CHART_START-->") {
		t.Errorf("chart block missing: %q", b2.AnswerText())
	}
}

func TestRespondChartWithoutPreviousData(t *testing.T) {
	t.Parallel()

	tk := &fakeTickets{sum: &tickets.Summary{}}
	r, _, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{}, tk)

	b := stream.NewBuffer()
	if _, err := r.Respond(context.Background(), sess, "chart the above", b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	assertProtocol(t, b)
	if !strings.Contains(b.AnswerText(), "No previous ticket data") {
		t.Errorf("answer: %q", b.AnswerText())
	}
	if tk.summaryCalls != 0 {
		t.Errorf("store queried for a cache-only request: %d calls", tk.summaryCalls)
	}
}

func TestRespondMetricsStoreFailure(t *testing.T) {
	t.Parallel()

	tk := &fakeTickets{err: errors.New("db locked")}
	r, _, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{}, tk)

	b := stream.NewBuffer()
	if _, err := r.Respond(context.Background(), sess, "what are my tickets?", b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	assertProtocol(t, b)
	if !strings.Contains(b.AnswerText(), "encountered an issue") {
		t.Errorf("answer: %q", b.AnswerText())
	}
}

func TestRespondLookup(t *testing.T) {
	t.Parallel()

	r, _, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{}, &fakeTickets{})
	b := stream.NewBuffer()
	if _, err := r.Respond(context.Background(), sess, "what regions are available?", b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	assertProtocol(t, b)
	if !strings.Contains(b.AnswerText(), "East") || !strings.Contains(b.AnswerText(), "West") {
		t.Errorf("lookup answer: %q", b.AnswerText())
	}
}

func TestRespondRecordsTranscript(t *testing.T) {
	t.Parallel()

	r, sessions, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{answer: "hi"}, &fakeTickets{})
	b := stream.NewBuffer()
	if _, err := r.Respond(context.Background(), sess, "hello", b); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	snap := sessions.Snapshot(sess)
	if len(snap.Transcript) != 2 {
		t.Fatalf("transcript: got %d messages, want 2", len(snap.Transcript))
	}
	if snap.Transcript[0].Role != session.RoleUser || snap.Transcript[1].Role != session.RoleAssistant {
		t.Errorf("transcript roles: %+v", snap.Transcript)
	}
}

// droppedEmitter simulates a client that disconnects before the answer can
// be delivered: the answer frame fails to write.
type droppedEmitter struct {
	stream.Emitter
}

func (droppedEmitter) Answer(string) error {
	return errors.New("write tcp: broken pipe")
}

func TestRespondAbandonedTurnLeavesNoTranscript(t *testing.T) {
	t.Parallel()

	r, sessions, sess := newTestRouter(t, loadedIndex(t), &fakeGateway{answer: "hi"}, &fakeTickets{})
	em := droppedEmitter{Emitter: stream.NewBuffer()}
	if _, err := r.Respond(context.Background(), sess, "hello", em); err == nil {
		t.Fatal("Respond: want error when the answer cannot be delivered")
	}
	if snap := sessions.Snapshot(sess); len(snap.Transcript) != 0 {
		t.Errorf("abandoned turn committed %d transcript messages: %+v",
			len(snap.Transcript), snap.Transcript)
	}
}
