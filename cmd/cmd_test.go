package cmd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lineecho/pkg/bus"
	"lineecho/pkg/channel/line"
	"lineecho/pkg/config"
)

func TestLogEventLevels(t *testing.T) {
	recorder := &recordingHandler{}
	log := slog.New(recorder)

	logEvent(log, bus.Event{Type: bus.EventWebhookReceived, RequestID: "1", Payload: map[string]string{"events": "2"}})
	if got := recorder.LastLevel(); got != slog.LevelInfo {
		t.Fatalf("received event level = %v, want %v", got, slog.LevelInfo)
	}

	logEvent(log, bus.Event{Type: bus.EventReplySent, RequestID: "1", EventType: "message"})
	if got := recorder.LastLevel(); got != slog.LevelInfo {
		t.Fatalf("sent event level = %v, want %v", got, slog.LevelInfo)
	}

	logEvent(log, bus.Event{Type: bus.EventSignatureRejected, RequestID: "2"})
	if got := recorder.LastLevel(); got != slog.LevelWarn {
		t.Fatalf("rejected event level = %v, want %v", got, slog.LevelWarn)
	}

	logEvent(log, bus.Event{Type: bus.EventReplyFailed, RequestID: "3", Error: "boom"})
	if got := recorder.LastLevel(); got != slog.LevelError {
		t.Fatalf("failed event level = %v, want %v", got, slog.LevelError)
	}
}

func TestEnabledAdaptersRequiresSecrets(t *testing.T) {
	t.Parallel()

	if _, err := enabledAdapters(&config.Config{}, nil, nil); err == nil {
		t.Fatal("expected error without LINE credentials")
	}

	cfg := &config.Config{Line: config.LineConfig{ChannelSecret: "s", ChannelAccessToken: "t", CallbackPath: "/hook"}}
	adapters, err := enabledAdapters(cfg, nil, nil)
	if err != nil {
		t.Fatalf("enabledAdapters error: %v", err)
	}
	if len(adapters) != 1 || adapters[0].Path() != "/hook" {
		t.Fatalf("adapters = %+v, want one line adapter on /hook", adapters)
	}
}

func TestCallbackURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "wildcard host dials loopback",
			cfg:  config.Config{Line: config.LineConfig{CallbackPath: "/callback"}},
			want: "http://127.0.0.1:8000/callback",
		},
		{
			name: "explicit host",
			cfg:  config.Config{Line: config.LineConfig{CallbackPath: "/hook"}, Server: config.ServerConfig{Host: "10.0.0.5", Port: 9000}},
			want: "http://10.0.0.5:9000/hook",
		},
	}

	for _, tt := range tests {
		if got := callbackURL(&tt.cfg); got != tt.want {
			t.Fatalf("%s: callbackURL = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestBuildTextWebhook(t *testing.T) {
	t.Parallel()

	body, err := buildTextWebhook("abc123", "hello", time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatalf("buildTextWebhook error: %v", err)
	}

	var decoded struct {
		Events []struct {
			Type       string `json:"type"`
			ReplyToken string `json:"replyToken"`
			Timestamp  int64  `json:"timestamp"`
			Message    struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"message"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal webhook: %v", err)
	}

	if len(decoded.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(decoded.Events))
	}
	event := decoded.Events[0]
	if event.Type != "message" || event.Message.Type != "text" {
		t.Fatalf("event = %+v, want text message event", event)
	}
	if event.ReplyToken != "abc123" || event.Message.Text != "hello" {
		t.Fatalf("event = %+v, want token abc123 text hello", event)
	}
	if event.Timestamp != 1700000000000 {
		t.Fatalf("timestamp = %d, want 1700000000000", event.Timestamp)
	}
}

func TestPostWebhookSignsBody(t *testing.T) {
	t.Parallel()

	type received struct {
		signature string
		body      []byte
	}
	requests := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- received{signature: r.Header.Get(line.SignatureHeader), body: body}
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	body := []byte(`{"events":[]}`)
	status, err := postWebhook(server.URL, body, line.Sign("secret", body))
	if err != nil {
		t.Fatalf("postWebhook error: %v", err)
	}
	if status != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", status, http.StatusForbidden)
	}

	got := <-requests
	if got.signature != line.Sign("secret", body) {
		t.Fatalf("signature = %q, want signed body", got.signature)
	}
	if string(got.body) != string(body) {
		t.Fatalf("body = %q, want %q", got.body, body)
	}
}

func TestRenderSimulation(t *testing.T) {
	t.Parallel()

	out := renderSimulation(defaultTheme(), "http://127.0.0.1:8000/callback", "abc123", "hello", http.StatusOK)
	for _, want := range []string{"lineecho simulate", "abc123", "hello", "200 OK"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render output missing %q:\n%s", want, out)
		}
	}

	failed := renderSimulation(defaultTheme(), "u", "t", "x", http.StatusForbidden)
	if !strings.Contains(failed, "403 Forbidden") {
		t.Fatalf("render output missing status:\n%s", failed)
	}
}

func TestLogEventsStopsWithContext(t *testing.T) {
	events := bus.NewEventBus()
	t.Cleanup(events.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		logEvents(ctx, events, slog.New(&recordingHandler{}))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("logEvents did not return after cancel")
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(_ string) slog.Handler { return h }

func (h *recordingHandler) LastLevel() slog.Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == 0 {
		return 0
	}
	return h.records[len(h.records)-1].Level
}
