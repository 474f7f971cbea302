package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Chat message roles accepted on /v1/chat/completions.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part discriminators for the array form of message content.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ChatCompletionRequest is the request payload for POST /v1/chat/completions.
type ChatCompletionRequest struct {
	// Optional model identifier. If empty, the server default is used.
	// example: qwen3-vl-instruct
	Model string `json:"model,omitempty" example:"qwen3-vl-instruct"`
	// Ordered conversation messages. At least one is required.
	Messages []ChatMessage `json:"messages"`
	// If true, stream deltas as server-sent events instead of a single object.
	// example: false
	Stream bool `json:"stream,omitempty" example:"false"`
	// Maximum number of new tokens to generate. Passed through to the engine.
	MaxTokens int `json:"max_tokens,omitempty" example:"512"`
	// Sampling temperature. Passed through to the engine.
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability. Passed through to the engine.
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
}

// ChatMessage is one conversation entry.
type ChatMessage struct {
	// Role of the author: system, user or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// Content is either a plain string or an array of typed parts.
	Content MessageContent `json:"content"`
}

// MessageContent is the polymorphic content field of a chat message. The API
// accepts either a bare string or an ordered array of typed parts; both forms
// decode into this struct. Parts being non-nil marks the array form.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// IsParts reports whether the content arrived in the array-of-parts form.
func (c MessageContent) IsParts() bool { return c.Parts != nil }

// MarshalJSON emits the same form the content was built with.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts both the string form and the array-of-parts form.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = MessageContent{}
		return nil
	}
	switch data[0] {
	case '"':
		c.Parts = nil
		return json.Unmarshal(data, &c.Text)
	case '[':
		c.Text = ""
		return json.Unmarshal(data, &c.Parts)
	default:
		return fmt.Errorf("message content must be a string or an array of parts")
	}
}

// ContentPart is one element of the array form of message content.
type ContentPart struct {
	// Part discriminator: "text" or "image_url".
	// example: image_url
	Type string `json:"type" example:"image_url"`
	// Text payload, set when Type is "text".
	Text string `json:"text,omitempty"`
	// Image reference, set when Type is "image_url".
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries a media reference: a local path, file:// URI, data: URI or
// http(s) URL. Video files are referenced through the same field.
type ImageURL struct {
	// example: https://example.com/cat.jpg
	URL string `json:"url" example:"https://example.com/cat.jpg"`
	// Detail hint from the OpenAI schema. Accepted and ignored.
	Detail string `json:"detail,omitempty"`
}

// ChatCompletionResponse is the non-streaming response body.
type ChatCompletionResponse struct {
	// Completion identifier.
	// example: chatcmpl-6f9d6a5a-6a0e-4a55-8e44-1b4c6e9c2f10
	ID string `json:"id"`
	// Always "chat.completion".
	Object string `json:"object" example:"chat.completion"`
	// Creation time in unix seconds.
	Created int64 `json:"created" example:"1700000000"`
	// Model that served the request.
	Model string `json:"model" example:"qwen3-vl-instruct"`
	// Exactly one choice.
	Choices []Choice `json:"choices"`
	// Token accounting.
	Usage Usage `json:"usage"`
}

// Choice is a completed assistant turn.
type Choice struct {
	Index int `json:"index"`
	// Generated message.
	Message ResponseMessage `json:"message"`
	// Why generation stopped; "stop" on natural completion.
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
}

// ResponseMessage is the assistant message inside a choice.
type ResponseMessage struct {
	// example: assistant
	Role string `json:"role" example:"assistant"`
	// Generated text.
	Content string `json:"content"`
}

// Usage reports token counts for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" example:"42"`
	CompletionTokens int `json:"completion_tokens" example:"128"`
	TotalTokens      int `json:"total_tokens" example:"170"`
}

// ChatCompletionChunk is one streamed SSE event payload.
type ChatCompletionChunk struct {
	ID      string `json:"id"`
	// Always "chat.completion.chunk".
	Object  string        `json:"object" example:"chat.completion.chunk"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is the delta carrier inside a streamed chunk.
type ChunkChoice struct {
	Index int   `json:"index"`
	Delta Delta `json:"delta"`
	// Nil until the terminal chunk, then "stop".
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental payload of a streamed chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}
