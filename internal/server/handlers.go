package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/llm"
	"chat-relay/internal/storage"
	"chat-relay/internal/transcript"
)

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []apiMessage `json:"messages"`
	Model       string       `json:"model,omitempty"`
	Temperature *float32     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
}

type feedbackRequest struct {
	MessageIndex      int          `json:"message_index"`
	Feedback          string       `json:"feedback"`
	Messages          []apiMessage `json:"messages,omitempty"`
	ConversationIndex *int         `json:"conversation_index,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

// writeError reports failures in-band with status 200; the web client
// reads the error field instead of the status code.
func writeError(w http.ResponseWriter, msg string) {
	writeJSON(w, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

// resolveCaller returns the user ID for the request, or writes an
// in-band error and returns false.
func (s *Server) resolveCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := s.resolver.Resolve(r)
	if err != nil {
		writeError(w, "could not resolve identity")
		return "", false
	}
	if s.allow != nil && !s.allow.IsAllowed(userID) {
		writeError(w, "user is not allowed")
		return "", false
	}
	return userID, true
}

func (s *Server) params(req chatRequest) llm.Params {
	p := s.defaults
	if req.Model != "" {
		p.Model = req.Model
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		p.MaxTokens = *req.MaxTokens
	}
	return p
}

func toLLM(msgs []apiMessage) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func toTranscript(msgs []apiMessage, reply string) []transcript.Message {
	out := make([]transcript.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		out = append(out, transcript.Message{Role: m.Role, Content: m.Content})
	}
	out = append(out, transcript.Message{Role: "assistant", Content: reply})
	return out
}

func lastUserContent(msgs []apiMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func (s *Server) record(userID string, msgs []apiMessage, resp llm.Response) {
	if s.recorder == nil {
		return
	}
	ev := storage.Event{
		Timestamp:         time.Now().UTC(),
		UserID:            userID,
		UserMessage:       lastUserContent(msgs),
		AssistantResponse: resp.Content,
		Model:             resp.Model,
		PromptTokens:      resp.PromptTokens,
		CompletionTokens:  resp.CompletionTokens,
		TotalTokens:       resp.TotalTokens,
	}
	if err := s.recorder.AppendInteraction(ev); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("append audit event")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, "No messages provided")
		return
	}

	resp, err := s.gateway.Complete(r.Context(), toLLM(req.Messages), s.params(req))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("completion failed")
		writeError(w, err.Error())
		return
	}

	if _, err := s.store.AppendConversation(userID, toTranscript(req.Messages, resp.Content)); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("append conversation failed")
		writeError(w, "failed to log conversation")
		return
	}
	s.record(userID, req.Messages, resp)

	writeJSON(w, map[string]string{"message": resp.Content})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, "No messages provided")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, "streaming unsupported")
		return
	}

	// The request context cancels the upstream stream when the client
	// disconnects.
	stream, err := s.gateway.CompleteStream(r.Context(), toLLM(req.Messages), s.params(req))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("completion stream failed")
		writeError(w, err.Error())
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	var reply strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Mid-stream failure or client disconnect: the partial
			// reply is not logged to the transcript.
			log.Warn().Err(err).Str("user_id", userID).Msg("stream interrupted")
			return
		}
		if fragment == "" {
			continue
		}
		reply.WriteString(fragment)
		if _, err := io.WriteString(w, fragment); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("client write failed")
			return
		}
		flusher.Flush()
	}

	// Exactly one append for the whole assembled reply.
	if _, err := s.store.AppendConversation(userID, toTranscript(req.Messages, reply.String())); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("append conversation failed")
		return
	}
	s.record(userID, req.Messages, llm.Response{Content: reply.String(), Model: s.params(req).Model})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body")
		return
	}
	if req.Feedback == "" {
		writeError(w, "no feedback provided")
		return
	}

	// The handler, not the store, resolves which conversation the
	// feedback refers to; without an explicit index it targets the
	// most recently logged one.
	ci := -1
	if req.ConversationIndex != nil {
		ci = *req.ConversationIndex
	} else {
		convs, err := s.store.ListConversations(userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("list conversations failed")
			writeError(w, "failed to load conversations")
			return
		}
		ci = len(convs) - 1
	}

	updated, err := s.store.SetMessageFeedback(userID, ci, req.MessageIndex, req.Feedback)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("set feedback failed")
		writeError(w, "failed to save feedback")
		return
	}
	if !updated {
		writeError(w, "message not found")
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}
