package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeEngine struct {
	openErr   error
	openBlock chan struct{}
	stream    *fakeStream
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Open(ctx context.Context, cfg StreamConfig) (EngineStream, error) {
	if e.openBlock != nil {
		<-e.openBlock
	}
	if e.openErr != nil {
		return nil, e.openErr
	}
	return e.stream, nil
}

type fakeStream struct {
	mu      sync.Mutex
	written [][]byte

	results       chan EngineResult
	stopOnClose   bool
	closeWriteHit chan struct{}
	once          sync.Once
}

func newFakeStream(stopOnClose bool) *fakeStream {
	return &fakeStream{
		results:       make(chan EngineResult, 16),
		stopOnClose:   stopOnClose,
		closeWriteHit: make(chan struct{}),
	}
}

func (s *fakeStream) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, pcm)
	return nil
}

func (s *fakeStream) CloseWrite() error {
	s.once.Do(func() {
		close(s.closeWriteHit)
		if s.stopOnClose {
			s.results <- EngineResult{Reason: ReasonSessionStopped}
		}
	})
	return nil
}

func (s *fakeStream) Results() <-chan EngineResult { return s.results }

func (s *fakeStream) Close() error { return nil }

func (s *fakeStream) chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.written...)
}

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("events channel not closed, got %v", out)
		}
	}
}

func TestRecognizerOpenFailure(t *testing.T) {
	r := NewRecognizer(&fakeEngine{openErr: errors.New("bad credentials")}, StreamConfig{SessionID: "s1"}, 4)
	r.Start(context.Background())

	events := collectEvents(t, r.Events())
	if len(events) != 1 {
		t.Fatalf("expected one event, got %v", events)
	}
	if events[0].Kind != EventFailure {
		t.Fatalf("kind = %v, want failure", events[0].Kind)
	}
	if !strings.HasPrefix(events[0].Reason, "Failed to start speech recognition: ") {
		t.Errorf("reason = %q", events[0].Reason)
	}
	if !strings.Contains(events[0].Reason, "bad credentials") {
		t.Errorf("reason should carry the open error: %q", events[0].Reason)
	}
}

func TestRecognizerNormalizesResults(t *testing.T) {
	stream := newFakeStream(false)
	for _, res := range []EngineResult{
		{Reason: ReasonSessionStarted},
		{Reason: ReasonSessionStarted},
		{Reason: ReasonRecognizing, Text: "hel"},
		{Reason: ReasonRecognizing},
		{Reason: ReasonRecognized, Text: "hello"},
		{Reason: ReasonNoMatch},
		{Reason: ReasonCanceled},
		{Reason: ReasonCanceled, ErrorDetails: "quota exceeded"},
		{Reason: ReasonSessionStopped},
		{Reason: ReasonRecognized, Text: "after stop"},
	} {
		stream.results <- res
	}

	r := NewRecognizer(&fakeEngine{stream: stream}, StreamConfig{SessionID: "s1"}, 4)
	r.Start(context.Background())

	got := collectEvents(t, r.Events())
	want := []Event{
		{Kind: EventReady},
		{Kind: EventPartial, Text: "hel"},
		{Kind: EventFinal, Text: "hello"},
		{Kind: EventNoSpeech},
		{Kind: EventFailure, Reason: "speech recognition canceled"},
		{Kind: EventFailure, Reason: "quota exceeded"},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRecognizerFlushesAudioOnStop(t *testing.T) {
	stream := newFakeStream(true)
	engine := &fakeEngine{stream: stream, openBlock: make(chan struct{})}
	r := NewRecognizer(engine, StreamConfig{SessionID: "s1"}, 8)
	r.Start(context.Background())

	sink := r.Sink()
	if err := sink.Write([]byte{1, 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Write([]byte{3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	close(engine.openBlock)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case <-stream.closeWriteHit:
	default:
		t.Fatal("CloseWrite was not called")
	}
	chunks := stream.chunks()
	if len(chunks) != 2 || chunks[0][0] != 1 || chunks[1][0] != 3 {
		t.Fatalf("chunks = %v, want both frames in order", chunks)
	}
	if err := sink.Write([]byte{5}); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("write after stop = %v, want ErrSinkClosed", err)
	}
}

func TestRecognizerStopTimesOut(t *testing.T) {
	stream := newFakeStream(false)
	r := NewRecognizer(&fakeEngine{stream: stream}, StreamConfig{SessionID: "s1"}, 4)
	r.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("stop = %v, want deadline exceeded", err)
	}

	// 强制终止后事件通道仍会关闭
	collectEvents(t, r.Events())
}

func TestSinkRejectsWhenBufferFull(t *testing.T) {
	engine := &fakeEngine{stream: newFakeStream(true), openBlock: make(chan struct{})}
	r := NewRecognizer(engine, StreamConfig{SessionID: "s1"}, 1)
	r.Start(context.Background())
	defer close(engine.openBlock)

	if err := r.Sink().Write([]byte{1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := r.Sink().Write([]byte{2}); !errors.Is(err, ErrSinkFull) {
		t.Fatalf("second write = %v, want ErrSinkFull", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := NewRecognizer(&fakeEngine{}, StreamConfig{}, 1)
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if events := collectEvents(t, r.Events()); len(events) != 0 {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestLocaleFor(t *testing.T) {
	cases := map[string]string{
		"ja": "ja-JP",
		"en": "en-US",
		"":   "en-US",
		"fr": "en-US",
		"JA": "en-US",
	}
	for in, want := range cases {
		if got := LocaleFor(in); got != want {
			t.Errorf("LocaleFor(%q) = %q, want %q", in, got, want)
		}
	}
}
