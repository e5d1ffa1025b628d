package llm

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(apiKey, baseURL, model, referrer, title string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	// Inject optional headers (useful for OpenRouter)
	if referrer != "" || title != "" {
		h := http.Header{}
		if referrer != "" {
			h.Set("HTTP-Referer", referrer)
		}
		if title != "" {
			h.Set("X-Title", title)
		}
		base := http.DefaultTransport
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: base, headers: h}}
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *OpenAIClient) request(messages []Message, params Params) openai.ChatCompletionRequest {
	var oaMsgs []openai.ChatCompletionMessage
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	model := params.Model
	if model == "" {
		model = c.model
	}
	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    oaMsgs,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, params Params) (Response, error) {
	req := c.request(messages, params)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, wrapUpstream(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, &GatewayError{Message: "empty completion response"}
	}
	return Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            req.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func (c *OpenAIClient) CompleteStream(ctx context.Context, messages []Message, params Params) (Stream, error) {
	req := c.request(messages, params)
	req.Stream = true
	s, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, wrapUpstream(err)
	}
	return &openaiStream{s: s}, nil
}

type openaiStream struct {
	s *openai.ChatCompletionStream
}

func (s *openaiStream) Recv() (string, error) {
	resp, err := s.s.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", wrapUpstream(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openaiStream) Close() error { return s.s.Close() }

func wrapUpstream(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &GatewayError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	return &GatewayError{Message: err.Error(), Err: err}
}
