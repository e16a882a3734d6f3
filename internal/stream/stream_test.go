package stream

import (
	"bufio"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBufferOrdering(t *testing.T) {
	t.Parallel()

	b := NewBuffer()
	if err := b.Status("searching"); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if err := b.Status("generating"); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if err := b.Answer("the answer"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := b.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	frames := b.Frames()
	want := []FrameType{FrameStatus, FrameStatus, FrameAnswer, FrameDone}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i, w := range want {
		if frames[i].Type != w {
			t.Errorf("frame %d: got %q, want %q", i, frames[i].Type, w)
		}
	}
	if b.AnswerText() != "the answer" {
		t.Errorf("AnswerText: got %q", b.AnswerText())
	}
	if !b.Completed() {
		t.Error("Completed: got false after Done")
	}
}

func TestBufferRejectsProtocolViolations(t *testing.T) {
	t.Parallel()

	t.Run("status after answer", func(t *testing.T) {
		t.Parallel()
		b := NewBuffer()
		b.Answer("a")
		if err := b.Status("late"); err == nil {
			t.Error("want error")
		}
	})
	t.Run("duplicate answer", func(t *testing.T) {
		t.Parallel()
		b := NewBuffer()
		b.Answer("a")
		if err := b.Answer("b"); err == nil {
			t.Error("want error")
		}
	})
	t.Run("frames after done", func(t *testing.T) {
		t.Parallel()
		b := NewBuffer()
		b.Answer("a")
		b.Done()
		if err := b.Answer("late"); err == nil {
			t.Error("answer after done: want error")
		}
		if err := b.Done(); err == nil {
			t.Error("duplicate done: want error")
		}
	})
}

func TestSSEWireFormat(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	e, err := NewSSE(rec)
	if err != nil {
		t.Fatalf("NewSSE: %v", err)
	}
	if err := e.Status("searching the knowledge base"); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if err := e.Answer("final answer"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := e.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control: got %q", cc)
	}

	var events []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		} else if line != "" {
			t.Errorf("unexpected line %q", line)
		}
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	var status Frame
	if err := json.Unmarshal([]byte(events[0]), &status); err != nil {
		t.Fatalf("status event is not JSON: %v", err)
	}
	if status.Type != FrameStatus || status.Message != "searching the knowledge base" {
		t.Errorf("status frame: %+v", status)
	}

	var answer Frame
	if err := json.Unmarshal([]byte(events[1]), &answer); err != nil {
		t.Fatalf("answer event is not JSON: %v", err)
	}
	if answer.Type != FrameAnswer || answer.Text != "final answer" {
		t.Errorf("answer frame: %+v", answer)
	}

	if events[2] != "[DONE]" {
		t.Errorf("terminal event: got %q, want [DONE]", events[2])
	}
}

func TestSSEEnforcesOrdering(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	e, err := NewSSE(rec)
	if err != nil {
		t.Fatalf("NewSSE: %v", err)
	}
	e.Answer("a")
	if err := e.Status("late"); err == nil {
		t.Error("status after answer: want error")
	}
	e.Done()
	if err := e.Done(); err == nil {
		t.Error("duplicate done: want error")
	}
}
