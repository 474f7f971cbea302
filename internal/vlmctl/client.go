package vlmctl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vlmd/pkg/types"
)

// Config carries the connection settings shared by all subcommands.
type Config struct {
	ServerURL  string
	APIKey     string
	TimeoutSec int
	LogLvl     string
}

func (c *Config) baseURL() string { return strings.TrimRight(c.ServerURL, "/") }

func (c *Config) timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c *Config) httpClient() *http.Client {
	return &http.Client{Timeout: c.timeout()}
}

// authorize attaches the API key the way the server expects it.
func (c *Config) authorize(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

// getJSON fetches path and decodes the response into out. Non-2xx responses
// are surfaced with the server's error message when one is present.
func getJSON(ctx context.Context, cfg *Config, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.baseURL()+path, nil)
	if err != nil {
		return err
	}
	cfg.authorize(req)
	resp, err := cfg.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError turns a non-2xx response into a readable error.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, er.Error.Message)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}

// readSSE consumes a text/event-stream body, invoking onData for each data
// payload until the [DONE] sentinel or EOF. Returns the time of the first
// event for latency reporting.
func readSSE(body io.Reader, onData func(string)) (firstByte time.Time, err error) {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if firstByte.IsZero() {
			firstByte = time.Now()
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return firstByte, nil
		}
		onData(payload)
	}
	return firstByte, sc.Err()
}

func runHealth(ctx context.Context, cfg *Config) error {
	var h types.HealthResponse
	if err := getJSON(ctx, cfg, "/health", &h); err != nil {
		return err
	}
	fmt.Printf("status:  %s\n", h.Status)
	fmt.Printf("model:   %s\n", h.Model)
	fmt.Printf("version: %s\n", h.Version)
	fmt.Printf("slots:   %d free / %d total (%d broken)\n", h.SlotsFree, h.MaxConcurrent, h.SlotsBroken)
	if h.Details != "" {
		fmt.Printf("details: %s\n", h.Details)
	}
	return nil
}

func runModels(ctx context.Context, cfg *Config) error {
	var list types.ModelList
	if err := getJSON(ctx, cfg, "/v1/models", &list); err != nil {
		return err
	}
	for _, m := range list.Data {
		fmt.Printf("%s\t%s\n", m.ID, m.Description)
	}
	return nil
}
