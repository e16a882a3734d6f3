// Package stream defines the turn streaming protocol: zero or more status
// frames, exactly one answer frame, then a terminal done frame. Emitters
// enforce that ordering so every transport (SSE, buffered JSON) exposes the
// same contract.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// FrameType discriminates the frames of one turn.
type FrameType string

const (
	// FrameStatus is an intermediate progress update, safe to drop.
	FrameStatus FrameType = "status"
	// FrameAnswer carries the final answer text. Exactly one per turn.
	FrameAnswer FrameType = "answer"
	// FrameDone terminates the turn. Always sent, even after failures.
	FrameDone FrameType = "done"
)

// Frame is one protocol message.
type Frame struct {
	Type FrameType `json:"type"`
	// Message is the human-readable progress text on status frames.
	Message string `json:"message,omitempty"`
	// Text is the answer body on answer frames.
	Text string `json:"text,omitempty"`
}

// Emitter receives the frames of one turn in protocol order. Implementations
// reject out-of-order frames so bugs surface in tests rather than as silent
// protocol violations on the wire.
type Emitter interface {
	// Status emits a progress update. Only valid before the answer.
	Status(message string) error
	// Answer emits the final answer. Valid exactly once.
	Answer(text string) error
	// Done terminates the turn. All later calls fail.
	Done() error
}

// guard tracks protocol state shared by all emitters.
type guard struct {
	answered bool
	done     bool
}

func (g *guard) checkStatus() error {
	if g.done {
		return fmt.Errorf("stream: status after done")
	}
	if g.answered {
		return fmt.Errorf("stream: status after answer")
	}
	return nil
}

func (g *guard) checkAnswer() error {
	if g.done {
		return fmt.Errorf("stream: answer after done")
	}
	if g.answered {
		return fmt.Errorf("stream: duplicate answer")
	}
	g.answered = true
	return nil
}

func (g *guard) checkDone() error {
	if g.done {
		return fmt.Errorf("stream: duplicate done")
	}
	g.done = true
	return nil
}

// SSEEmitter writes frames as server-sent events: each frame is one
// `data: {json}` event, and the done frame is the literal `data: [DONE]`
// sentinel clients use to stop reading. Every event is flushed immediately.
type SSEEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	guard   guard
}

// NewSSE prepares w for server-sent events and returns an emitter writing to
// it. Returns an error if the ResponseWriter cannot flush.
func NewSSE(w http.ResponseWriter) (*SSEEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("stream: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &SSEEmitter{w: w, flusher: flusher}, nil
}

func (e *SSEEmitter) send(f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("stream: marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("stream: write frame: %w", err)
	}
	e.flusher.Flush()
	return nil
}

// Status emits a progress event.
func (e *SSEEmitter) Status(message string) error {
	if err := e.guard.checkStatus(); err != nil {
		return err
	}
	return e.send(Frame{Type: FrameStatus, Message: message})
}

// Answer emits the final answer event.
func (e *SSEEmitter) Answer(text string) error {
	if err := e.guard.checkAnswer(); err != nil {
		return err
	}
	return e.send(Frame{Type: FrameAnswer, Text: text})
}

// Done emits the terminal sentinel and flushes.
func (e *SSEEmitter) Done() error {
	if err := e.guard.checkDone(); err != nil {
		return err
	}
	if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("stream: write done: %w", err)
	}
	e.flusher.Flush()
	return nil
}

// Buffer collects frames in memory. It backs the non-streaming response
// path and makes handler tests trivial.
type Buffer struct {
	frames []Frame
	guard  guard
}

// NewBuffer returns an empty buffering emitter.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Status records a progress frame.
func (b *Buffer) Status(message string) error {
	if err := b.guard.checkStatus(); err != nil {
		return err
	}
	b.frames = append(b.frames, Frame{Type: FrameStatus, Message: message})
	return nil
}

// Answer records the final answer frame.
func (b *Buffer) Answer(text string) error {
	if err := b.guard.checkAnswer(); err != nil {
		return err
	}
	b.frames = append(b.frames, Frame{Type: FrameAnswer, Text: text})
	return nil
}

// Done records the terminal frame.
func (b *Buffer) Done() error {
	if err := b.guard.checkDone(); err != nil {
		return err
	}
	b.frames = append(b.frames, Frame{Type: FrameDone})
	return nil
}

// Frames returns everything recorded so far, in order.
func (b *Buffer) Frames() []Frame {
	return b.frames
}

// AnswerText returns the text of the recorded answer frame, or "".
func (b *Buffer) AnswerText() string {
	for _, f := range b.frames {
		if f.Type == FrameAnswer {
			return f.Text
		}
	}
	return ""
}

// Completed reports whether the turn reached its done frame.
func (b *Buffer) Completed() bool {
	return b.guard.done
}
