// Package loopback is a local fallback transport used when AWS credentials
// are not configured. It speaks just enough of the wire protocol to exercise
// the full session lifecycle: user text is echoed back as assistant text,
// and audio segments are acknowledged with a canned transcript.
package loopback

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/novagate/internal/nova"
)

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Open(ctx context.Context, sessionID string, outbound nova.OutboundSource) (nova.InboundStream, error) {
	s := &stream{in: make(chan []byte, 128)}
	go s.run(ctx, sessionID, outbound)
	return s, nil
}

type stream struct {
	mu     sync.Mutex
	in     chan []byte
	closed bool

	promptName  string
	audioChunks int
}

func (s *stream) Recv() ([]byte, error) {
	b, ok := <-s.in
	if !ok {
		return nil, io.EOF
	}
	return b, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
	return nil
}

func (s *stream) emit(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.in <- []byte(raw):
	default:
		log.Print("loopback: inbound buffer full, dropping frame")
	}
}

func (s *stream) run(ctx context.Context, sessionID string, outbound nova.OutboundSource) {
	defer s.Close()
	for {
		frame, err := outbound.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Printf("loopback: session %s outbound source: %v", sessionID, err)
			}
			return
		}
		if done := s.handle(frame); done {
			return
		}
	}
}

// handle reacts to one outbound wire event. Returns true on sessionEnd.
func (s *stream) handle(raw []byte) bool {
	var env struct {
		Event map[string]json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("loopback: malformed outbound frame: %v", err)
		return false
	}

	if p, ok := env.Event["promptStart"]; ok {
		var ps struct {
			PromptName string `json:"promptName"`
		}
		_ = json.Unmarshal(p, &ps)
		s.promptName = ps.PromptName
		return false
	}
	if p, ok := env.Event["textInput"]; ok {
		var ti struct {
			Content string `json:"content"`
		}
		_ = json.Unmarshal(p, &ti)
		s.replyText(fmt.Sprintf("echo: %s", ti.Content))
		return false
	}
	if _, ok := env.Event["audioInput"]; ok {
		s.audioChunks++
		return false
	}
	if _, ok := env.Event["contentEnd"]; ok {
		if s.audioChunks > 0 {
			s.replyText(fmt.Sprintf("heard %d audio chunks", s.audioChunks))
			s.audioChunks = 0
		}
		return false
	}
	if _, ok := env.Event["sessionEnd"]; ok {
		return true
	}
	return false
}

// replyText emits a full assistant text segment followed by a matching
// audio chunk, mimicking the upstream's interleaved output.
func (s *stream) replyText(text string) {
	contentID := uuid.NewString()
	s.emit(fmt.Sprintf(
		`{"event":{"contentStart":{"promptName":%q,"contentName":%q,"type":"TEXT","role":"ASSISTANT"}}}`,
		s.promptName, contentID))

	body, _ := json.Marshal(text)
	s.emit(fmt.Sprintf(
		`{"event":{"textOutput":{"promptName":%q,"contentName":%q,"role":"ASSISTANT","content":%s}}}`,
		s.promptName, contentID, body))

	audio := base64.StdEncoding.EncodeToString([]byte(text))
	s.emit(fmt.Sprintf(
		`{"event":{"audioOutput":{"promptName":%q,"contentName":%q,"content":%q}}}`,
		s.promptName, contentID, audio))

	s.emit(fmt.Sprintf(
		`{"event":{"contentEnd":{"promptName":%q,"contentName":%q,"stopReason":"END_TURN"}}}`,
		s.promptName, contentID))
}
