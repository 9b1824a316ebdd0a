package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HMasataka/fanout/internal/chat"
	"github.com/HMasataka/fanout/internal/logging"
)

// fakeLink records delivered frames and can be told to fail or close.
type fakeLink struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	failSend bool
}

func (f *fakeLink) Send(ctx context.Context, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failSend {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, append([]byte(nil), message...))
	return nil
}

func (f *fakeLink) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeLink) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) fail() {
	f.mu.Lock()
	f.failSend = true
	f.mu.Unlock()
}

// wireMsg is the union of every outbound payload shape, for decoding in
// assertions.
type wireMsg struct {
	Type       string   `json:"type"`
	From       string   `json:"from"`
	IP         string   `json:"ip"`
	Text       string   `json:"text"`
	Users      []string `json:"users"`
	Username   string   `json:"username"`
	RetryAfter int      `json:"retry_after"`
	Limit      int      `json:"limit"`
}

func (f *fakeLink) received(t *testing.T) []wireMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := make([]wireMsg, 0, len(f.sent))
	for _, raw := range f.sent {
		var m wireMsg
		require.NoError(t, json.Unmarshal(raw, &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func (f *fakeLink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "text"})
}

// testHub bundles a fully wired core for lifecycle tests.
type testHub struct {
	lifecycle *chat.Lifecycle
	registry  *chat.Registry
	limiter   *chat.RateLimiter
	engine    *chat.Engine
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()

	logger := testLogger()
	registry := chat.NewRegistry()
	limiter := chat.NewRateLimiter(8, 1)
	engine := chat.NewEngine(registry, logger, chat.EngineOptions{SendTimeout: time.Second})

	lifecycle := chat.NewLifecycle(chat.LifecycleOptions{
		Registry:        registry,
		RateLimiter:     limiter,
		Limiter:         chat.NewConnectionLimiter(3),
		Names:           chat.NewNameAllocator(32),
		Engine:          engine,
		Logger:          logger,
		MaxMessageRunes: 2000,
	})

	return &testHub{
		lifecycle: lifecycle,
		registry:  registry,
		limiter:   limiter,
		engine:    engine,
	}
}

func joinEvent(username string) []byte {
	raw, _ := json.Marshal(map[string]string{"type": "join", "username": username})
	return raw
}

func messageEvent(text string) []byte {
	raw, _ := json.Marshal(map[string]string{"type": "message", "text": text})
	return raw
}
