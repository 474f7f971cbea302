package vlmctl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// chatOptions are the per-invocation generation knobs.
type chatOptions struct {
	Model       string
	Images      []string
	Video       string
	Inline      bool
	Stream      bool
	MaxTokens   int
	Temperature float32
	TopP        float32
}

func newOpenAIClient(cfg *Config) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.baseURL() + "/v1"
	oc.HTTPClient = cfg.httpClient()
	return openai.NewClientWithConfig(oc)
}

// buildChatMessage assembles the user message. With media refs the message
// uses content parts; plain text stays a string for wire compactness.
func buildChatMessage(prompt string, opts *chatOptions) (openai.ChatCompletionMessage, error) {
	refs := append([]string{}, opts.Images...)
	if opts.Video != "" {
		refs = append(refs, opts.Video)
	}
	if len(refs) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}, nil
	}

	parts := make([]openai.ChatMessagePart, 0, len(refs)+1)
	if prompt != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: prompt})
	}
	for _, ref := range refs {
		url := ref
		if opts.Inline && ref != opts.Video {
			inlined, err := inlineImage(ref)
			if err != nil {
				return openai.ChatCompletionMessage{}, err
			}
			url = inlined
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}, nil
}

// inlineImage reads a local image and encodes it as a data URI, so the file
// does not need to exist on the server's filesystem.
func inlineImage(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("inline %s: %w", path, err)
	}
	mime := mimeByExt(path)
	if mime == "" {
		mime = http.DetectContentType(b)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

func mimeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".bmp":
		return "image/bmp"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ""
}

func runChat(ctx context.Context, cfg *Config, prompt string, opts *chatOptions) error {
	msg, err := buildChatMessage(prompt, opts)
	if err != nil {
		return err
	}
	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    []openai.ChatCompletionMessage{msg},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	client := newOpenAIClient(cfg)
	start := time.Now()

	if !opts.Stream {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("no completion choices in response")
		}
		fmt.Println(resp.Choices[0].Message.Content)
		info("model=%s finish=%s tokens=%d/%d elapsed=%s",
			resp.Model, resp.Choices[0].FinishReason,
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
			time.Since(start).Round(time.Millisecond))
		return nil
	}

	req.Stream = true
	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	defer stream.Close()

	var firstToken time.Time
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if firstToken.IsZero() {
				firstToken = time.Now()
				debug("first token after %s", firstToken.Sub(start).Round(time.Millisecond))
			}
			fmt.Print(delta)
		}
	}
	fmt.Println()
	info("elapsed=%s", time.Since(start).Round(time.Millisecond))
	return nil
}
