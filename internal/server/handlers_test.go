package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"chat-relay/internal/identity"
	"chat-relay/internal/llm"
	"chat-relay/internal/storage"
	"chat-relay/internal/transcript"
)

type fakeGateway struct {
	reply     string
	fragments []string
	err       error
}

func (f *fakeGateway) Complete(_ context.Context, _ []llm.Message, p llm.Params) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply, Model: p.Model, TotalTokens: 5}, nil
}

func (f *fakeGateway) CompleteStream(_ context.Context, _ []llm.Message, _ llm.Params) (llm.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeStream{fragments: f.fragments}, nil
}

type fakeStream struct {
	fragments []string
	pos       int
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	out := s.fragments[s.pos]
	s.pos++
	return out, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memRecorder) AppendInteraction(ev storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) LoadInteractions() ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event(nil), m.events...), nil
}

func newTestServer(gw llm.Client, rec storage.Recorder) (*Server, *transcript.MemoryStore) {
	store := transcript.NewMemoryStore()
	s := New(Options{
		Addr:        ":0",
		Store:       store,
		Gateway:     gw,
		Recorder:    rec,
		Resolver:    identity.Static{UserID: "default_user"},
		Defaults:    llm.Params{Model: "gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 1000},
		CORSOrigins: []string{"*"},
	})
	return s, store
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "healthy" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHandleChat(t *testing.T) {
	rec := &memRecorder{}
	s, store := newTestServer(&fakeGateway{reply: "hello there"}, rec)

	w := postJSON(t, s.Handler(), "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if body := decodeBody(t, w); body["message"] != "hello there" {
		t.Fatalf("unexpected body: %v", body)
	}

	convs, _ := store.ListConversations("default_user")
	if len(convs) != 1 || len(convs[0]) != 2 {
		t.Fatalf("conversation not logged: %+v", convs)
	}
	if convs[0][1].Role != "assistant" || convs[0][1].Content != "hello there" {
		t.Fatalf("reply not appended: %+v", convs[0][1])
	}

	events, _ := rec.LoadInteractions()
	if len(events) != 1 || events[0].UserMessage != "hi" || events[0].AssistantResponse != "hello there" {
		t.Fatalf("audit event not recorded: %+v", events)
	}
}

func TestHandleChatEmptyMessages(t *testing.T) {
	s, store := newTestServer(&fakeGateway{reply: "x"}, nil)

	w := postJSON(t, s.Handler(), "/api/chat", `{"messages":[]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("errors are reported in-band, got status %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "No messages provided" {
		t.Fatalf("unexpected body: %v", body)
	}
	if convs, _ := store.ListConversations("default_user"); len(convs) != 0 {
		t.Fatalf("nothing should be logged: %+v", convs)
	}
}

func TestHandleChatGatewayError(t *testing.T) {
	gwErr := &llm.GatewayError{StatusCode: 429, Message: "rate limited"}
	s, store := newTestServer(&fakeGateway{err: gwErr}, nil)

	w := postJSON(t, s.Handler(), "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("errors are reported in-band, got status %d", w.Code)
	}
	body := decodeBody(t, w)
	if !strings.Contains(body["error"], "rate limited") {
		t.Fatalf("unexpected body: %v", body)
	}
	if convs, _ := store.ListConversations("default_user"); len(convs) != 0 {
		t.Fatalf("failed completion must not be logged: %+v", convs)
	}
}

func TestHandleChatStream(t *testing.T) {
	s, store := newTestServer(&fakeGateway{fragments: []string{"hel", "lo ", "world"}}, nil)

	w := postJSON(t, s.Handler(), "/api/chat-stream", `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if got := w.Body.String(); got != "hello world" {
		t.Fatalf("streamed body mismatch: %q", got)
	}

	// exactly one append with the assembled reply
	convs, _ := store.ListConversations("default_user")
	if len(convs) != 1 {
		t.Fatalf("want 1 conversation, got %d", len(convs))
	}
	last := convs[0][len(convs[0])-1]
	if last.Role != "assistant" || last.Content != "hello world" {
		t.Fatalf("assembled reply not logged: %+v", last)
	}
}

func TestHandleFeedbackLastConversation(t *testing.T) {
	s, store := newTestServer(&fakeGateway{}, nil)
	if _, err := store.AppendConversation("default_user", []transcript.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := postJSON(t, s.Handler(), "/api/feedback", `{"message_index":1,"feedback":"positive","messages":[]}`)
	if body := decodeBody(t, w); body["status"] != "success" {
		t.Fatalf("unexpected body: %v", body)
	}

	convs, _ := store.ListConversations("default_user")
	if convs[0][1].Feedback != "positive" {
		t.Fatalf("feedback not stored: %+v", convs[0][1])
	}
}

func TestHandleFeedbackExplicitConversation(t *testing.T) {
	s, store := newTestServer(&fakeGateway{}, nil)
	for _, c := range []string{"first", "second"} {
		if _, err := store.AppendConversation("default_user", []transcript.Message{
			{Role: "user", Content: c},
			{Role: "assistant", Content: "re: " + c},
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	w := postJSON(t, s.Handler(), "/api/feedback", `{"conversation_index":0,"message_index":1,"feedback":"negative"}`)
	if body := decodeBody(t, w); body["status"] != "success" {
		t.Fatalf("unexpected body: %v", body)
	}

	convs, _ := store.ListConversations("default_user")
	if convs[0][1].Feedback != "negative" {
		t.Fatalf("feedback missed target: %+v", convs[0][1])
	}
	if convs[1][1].Feedback != "" {
		t.Fatalf("feedback hit wrong conversation: %+v", convs[1][1])
	}
}

func TestHandleFeedbackNotFound(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{}, nil)

	w := postJSON(t, s.Handler(), "/api/feedback", `{"message_index":0,"feedback":"positive"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("errors are reported in-band, got status %d", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "message not found" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status: %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}
