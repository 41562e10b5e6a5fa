// Package gateway provides thin adapters for the external generation
// providers. Each adapter translates one domain-level request into exactly
// one upstream call and normalizes the result or failure; no adapter ever
// touches the filesystem.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nicekate/storylab/internal/core"
)

// API endpoints and paths.
const (
	apiChatCompletions = "/v1/chat/completions"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
)

// DefaultHTTPTimeout bounds every upstream call issued by the gateways.
const DefaultHTTPTimeout = 120 * time.Second

// ChatClient is the single parameterized chat-completion client. Story
// generation, scene-prompt generation, sound-effect suggestion and
// placement-guide generation all go through SuggestText with different
// prompts; they are deliberately not independent HTTP clients.
type ChatClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewChatClient creates a chat-completion client for an OpenAI-compatible
// provider. The baseURL should include the protocol and host.
func NewChatClient(baseURL, apiKey, model string, temperature float64) *ChatClient {
	return &ChatClient{
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
	}
}

// SuggestText sends one chat-completion request and returns the raw
// completion text. An empty systemPrompt sends a single user message.
func (c *ChatClient) SuggestText(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: %s", core.ErrMissingConfiguration, "LLM API key")
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}

	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	requestBody, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := c.baseURL + apiChatCompletions

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAuthorization, "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: chat request to %s failed: %w", core.ErrUpstream, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return "", fmt.Errorf(
			"%w: chat completion returned %s: %s",
			core.ErrUpstream,
			resp.Status,
			string(body),
		)
	}

	var completion chatResponse

	err = json.NewDecoder(resp.Body).Decode(&completion)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode chat response: %w", core.ErrInvalidResponse, err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: chat response has no completion text", core.ErrInvalidResponse)
	}

	return completion.Choices[0].Message.Content, nil
}
