package vlmctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"vlmd/pkg/types"
)

// describeOptions control the media describe upload.
type describeOptions struct {
	Prompt    string
	MaxTokens int
	Stream    bool
}

// describeRequest uploads file as multipart form data. The body is streamed
// through a pipe so large videos are never buffered in memory.
func describeRequest(ctx context.Context, cfg *Config, file string, opts *describeOptions) (*http.Request, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		part, err := mw.CreateFormFile("file", filepath.Base(file))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil && opts.Prompt != "" {
			err = mw.WriteField("prompt", opts.Prompt)
		}
		if err == nil && opts.MaxTokens > 0 {
			err = mw.WriteField("max_tokens", strconv.Itoa(opts.MaxTokens))
		}
		if err == nil && opts.Stream {
			err = mw.WriteField("stream", "true")
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL()+"/v1/media/describe", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	cfg.authorize(req)
	return req, nil
}

func runDescribe(ctx context.Context, cfg *Config, file string, opts *describeOptions) error {
	req, err := describeRequest(ctx, cfg, file, opts)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := cfg.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apiError(resp)
	}

	if !opts.Stream {
		var dr types.DescribeResponse
		if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Println(dr.Description)
		info("media=%s model=%s server_time=%.2fs elapsed=%s",
			dr.Metadata.MediaType, dr.Metadata.Model,
			dr.Metadata.ProcessingTime, time.Since(start).Round(time.Millisecond))
		return nil
	}

	var streamErr error
	firstByte, err := readSSE(resp.Body, func(payload string) {
		var chunk types.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			warn("bad stream payload: %v", err)
			return
		}
		if len(chunk.Choices) > 0 {
			fmt.Print(chunk.Choices[0].Delta.Content)
			return
		}
		// Payloads without choices are either error events or noise.
		var er types.ErrorResponse
		if json.Unmarshal([]byte(payload), &er) == nil && er.Error.Message != "" {
			streamErr = fmt.Errorf("stream failed: %s", er.Error.Message)
		}
	})
	if err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	if streamErr != nil {
		return streamErr
	}
	fmt.Println()
	if !firstByte.IsZero() {
		debug("first event after %s", firstByte.Sub(start).Round(time.Millisecond))
	}
	info("elapsed=%s", time.Since(start).Round(time.Millisecond))
	return nil
}
