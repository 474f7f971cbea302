package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const streamScript = `#!/bin/sh
echo '{"event":"ready","model":"fake-vlm"}'
n=0
while IFS= read -r line; do
  case "$line" in
    *'"op":"generate"'*)
      n=$((n+1))
      printf '{"event":"delta","id":"%s","content":"Hello "}\n' "$n"
      printf '{"event":"delta","id":"%s","content":"world"}\n' "$n"
      printf '{"event":"done","id":"%s","content":"Hello world","finish_reason":"stop","usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}\n' "$n"
      ;;
    *'"op":"shutdown"'*)
      exit 0
      ;;
  esac
done
`

const errorScript = `#!/bin/sh
echo '{"event":"ready","model":"fake-vlm"}'
n=0
while IFS= read -r line; do
  case "$line" in
    *'"op":"generate"'*)
      n=$((n+1))
      printf '{"event":"error","id":"%s","message":"device fault"}\n' "$n"
      ;;
    *'"op":"shutdown"'*)
      exit 0
      ;;
  esac
done
`

const cancelScript = `#!/bin/sh
echo '{"event":"ready","model":"fake-vlm"}'
read -r line
printf '{"event":"delta","id":"1","content":"tick"}\n'
read -r line2
printf '{"event":"done","id":"1","content":"tick","finish_reason":"cancel"}\n'
while IFS= read -r line; do :; done
`

const crashScript = `#!/bin/sh
echo "device 0 not found" >&2
exit 3
`

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func fakeRunner(t *testing.T, script string) Config {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-runner")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write runner: %v", err)
	}
	modelDir := filepath.Join(dir, "model")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "fake.bmodel"), []byte("w"), 0o644); err != nil {
		t.Fatalf("write bmodel: %v", err)
	}
	return Config{
		ModelDir:     modelDir,
		RunnerBin:    bin,
		StartTimeout: 10 * time.Second,
		CancelGrace:  3 * time.Second,
	}
}

func TestRunnerGenerateStreams(t *testing.T) {
	requireSh(t)
	eng, err := NewRunner(fakeRunner(t, streamScript), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var deltas []string
	res, err := eng.Generate(ctx, Request{Prompt: "hi"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "Hello world" || res.FinishReason != "stop" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Usage.TotalTokens != 5 {
		t.Fatalf("usage = %+v", res.Usage)
	}
	if strings.Join(deltas, "") != "Hello world" {
		t.Fatalf("deltas = %q", deltas)
	}
}

func TestRunnerSequentialGenerates(t *testing.T) {
	requireSh(t)
	eng, err := NewRunner(fakeRunner(t, streamScript), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		res, err := eng.Generate(ctx, Request{Prompt: "hi"}, nil)
		if err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
		if res.Content != "Hello world" {
			t.Fatalf("Generate %d content = %q", i, res.Content)
		}
	}
}

func TestRunnerGenerationError(t *testing.T) {
	requireSh(t)
	eng, err := NewRunner(fakeRunner(t, errorScript), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = eng.Generate(ctx, Request{Prompt: "hi"}, nil)
	if !IsGeneration(err) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if IsFatal(err) {
		t.Fatalf("generation error must not be fatal: %v", err)
	}
	if !strings.Contains(err.Error(), "device fault") {
		t.Fatalf("error lost the engine message: %v", err)
	}
}

func TestRunnerCancelDrainsToAck(t *testing.T) {
	requireSh(t)
	eng, err := NewRunner(fakeRunner(t, cancelScript), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = eng.Generate(ctx, Request{Prompt: "hi"}, func(d string) error {
		cancel() // client goes away after the first delta
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsFatal(err) {
		t.Fatalf("acknowledged abort must not retire the instance: %v", err)
	}
}

func TestRunnerExitBeforeReady(t *testing.T) {
	requireSh(t)
	_, err := NewRunner(fakeRunner(t, crashScript), zerolog.Nop())
	if err == nil {
		t.Fatalf("expected construction failure")
	}
	if !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !strings.Contains(err.Error(), "device 0 not found") {
		t.Fatalf("stderr tail missing: %v", err)
	}
}

func TestRunnerMissingModelDir(t *testing.T) {
	requireSh(t)
	cfg := fakeRunner(t, streamScript)
	cfg.ModelDir = filepath.Join(t.TempDir(), "void")
	if _, err := NewRunner(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing model dir")
	}
}

func TestRunnerCloseIdempotent(t *testing.T) {
	requireSh(t)
	eng, err := NewRunner(fakeRunner(t, streamScript), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
