package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Runner wire protocol: one JSON object per line. Requests go to stdin,
// events come back on stdout. Every generate request gets exactly one
// terminal done/error event carrying its id.
const (
	opGenerate = "generate"
	opCancel   = "cancel"
	opShutdown = "shutdown"

	evReady = "ready"
	evDelta = "delta"
	evDone  = "done"
	evError = "error"
)

// maxEventBytes bounds one stdout line; done events carry the full completion.
const maxEventBytes = 8 << 20

type runnerRequest struct {
	Op          string   `json:"op"`
	ID          string   `json:"id,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Images      []string `json:"images,omitempty"`
	MediaKind   string   `json:"media_kind,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
}

type runnerEvent struct {
	Event        string       `json:"event"`
	ID           string       `json:"id,omitempty"`
	Model        string       `json:"model,omitempty"`
	Content      string       `json:"content,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Message      string       `json:"message,omitempty"`
	Usage        *runnerUsage `json:"usage,omitempty"`
}

type runnerUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type runnerEngine struct {
	cfg    Config
	log    zerolog.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer

	wmu    sync.Mutex
	seq    atomic.Uint64
	closed atomic.Bool

	events  chan runnerEvent
	exited  chan struct{}
	readErr error // set before exited/events close
}

// NewRunner spawns one runner process bound to cfg.DeviceID and waits for the
// model to finish loading. Missing model artifacts or a dead runner are
// construction failures, not deferred request failures.
func NewRunner(cfg Config, log zerolog.Logger) (Engine, error) {
	artifact, err := FindArtifact(cfg.ModelDir, ".bmodel")
	if err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(cfg.RunnerBin)
	if err != nil {
		return nil, fmt.Errorf("runner binary: %w", err)
	}

	cmd := exec.Command(bin,
		"--model-dir", cfg.ModelDir,
		"--devid", strconv.Itoa(cfg.DeviceID),
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start runner: %w", err)
	}

	e := &runnerEngine{
		cfg:    cfg,
		log:    log,
		cmd:    cmd,
		stdin:  stdin,
		stderr: &stderr,
		events: make(chan runnerEvent, 256),
		exited: make(chan struct{}),
	}
	go e.readLoop(stdout)

	// Ready handshake with a deadline. EOF before ready means the process died
	// during model load; surface the stderr tail.
	t := time.NewTimer(cfg.startTimeout())
	defer t.Stop()
	select {
	case ev, ok := <-e.events:
		if !ok {
			return nil, ErrFatal(e.exitErr(), "runner exited before ready")
		}
		if ev.Event != evReady {
			_ = e.Close()
			return nil, ErrFatal(nil, "unexpected first runner event %q", ev.Event)
		}
		log.Info().
			Int("pid", cmd.Process.Pid).
			Int("devid", cfg.DeviceID).
			Str("model", ev.Model).
			Str("artifact", filepath.Base(artifact)).
			Msg("runner ready")
	case <-t.C:
		_ = e.Close()
		return nil, ErrFatal(nil, "runner not ready within %s", cfg.startTimeout())
	}
	return e, nil
}

// RunnerFactory returns a Factory spawning one runner process per slot.
func RunnerFactory(cfg Config, log zerolog.Logger) Factory {
	return func(slotID int) (Engine, error) {
		return NewRunner(cfg, log.With().Int("slot", slotID).Logger())
	}
}

func (e *runnerEngine) Generate(ctx context.Context, req Request, onDelta func(string) error) (Result, error) {
	id := strconv.FormatUint(e.seq.Add(1), 10)
	err := e.send(runnerRequest{
		Op:          opGenerate,
		ID:          id,
		Prompt:      req.Prompt,
		Images:      req.Images,
		MediaKind:   req.MediaKind,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		return Result{}, ErrFatal(err, "write to runner")
	}

	// Once abortErr is set the loop is draining: a cancel notice has been
	// sent and deltas are dropped until the runner acknowledges with the
	// terminal event for this id. No acknowledgment within the grace window
	// means the runner is stuck and the instance is retired.
	var abortErr error
	var grace *time.Timer
	var graceC <-chan time.Time
	defer func() {
		if grace != nil {
			grace.Stop()
		}
	}()
	abort := func(cause error) {
		if abortErr != nil {
			return
		}
		abortErr = cause
		_ = e.send(runnerRequest{Op: opCancel, ID: id})
		grace = time.NewTimer(e.cfg.cancelGrace())
		graceC = grace.C
	}

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			abort(ctx.Err())
		case <-graceC:
			return Result{}, ErrFatal(abortErr, "abort unacknowledged after %s", e.cfg.cancelGrace())
		case ev, ok := <-e.events:
			if !ok {
				return Result{}, ErrFatal(e.exitErr(), "runner exited mid-generation")
			}
			if ev.ID != id {
				continue // stale event from an earlier aborted request
			}
			switch ev.Event {
			case evDelta:
				if abortErr != nil || ev.Content == "" {
					continue
				}
				if onDelta != nil {
					if err := onDelta(ev.Content); err != nil {
						abort(err)
					}
				}
			case evDone:
				if abortErr != nil {
					return Result{}, abortErr
				}
				res := Result{Content: ev.Content, FinishReason: ev.FinishReason}
				if res.FinishReason == "" {
					res.FinishReason = "stop"
				}
				if ev.Usage != nil {
					res.Usage = Usage{
						PromptTokens:     ev.Usage.PromptTokens,
						CompletionTokens: ev.Usage.CompletionTokens,
						TotalTokens:      ev.Usage.TotalTokens,
					}
				}
				return res, nil
			case evError:
				if abortErr != nil {
					return Result{}, abortErr
				}
				return Result{}, ErrGeneration(ev.Message)
			}
		}
	}
}

// Close asks the runner to shut down, escalating to SIGTERM and then SIGKILL.
// Idempotent.
func (e *runnerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = e.send(runnerRequest{Op: opShutdown})
	_ = e.stdin.Close()
	term := time.NewTimer(2 * time.Second)
	defer term.Stop()
	kill := time.NewTimer(4 * time.Second)
	defer kill.Stop()
	for {
		select {
		case <-e.exited:
			return nil
		case <-e.events:
			// discard stragglers so the read loop can finish
		case <-term.C:
			_ = e.cmd.Process.Signal(syscall.SIGTERM)
		case <-kill.C:
			_ = e.cmd.Process.Kill()
		}
	}
}

func (e *runnerEngine) send(v runnerRequest) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	e.wmu.Lock()
	defer e.wmu.Unlock()
	_, err = e.stdin.Write(b)
	return err
}

func (e *runnerEngine) readLoop(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), maxEventBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev runnerEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			e.log.Warn().Str("line", clip(string(line), 200)).Msg("unparseable runner line")
			continue
		}
		e.events <- ev
	}
	scanErr := sc.Err()
	waitErr := e.cmd.Wait()
	if waitErr != nil {
		e.readErr = waitErr
	} else {
		e.readErr = scanErr
	}
	close(e.exited)
	close(e.events)
}

// exitErr reconstructs why the runner went away, with the stderr tail when
// there is one. Only valid after the events channel closed.
func (e *runnerEngine) exitErr() error {
	err := e.readErr
	if tail := e.tail(); tail != "" {
		if err != nil {
			return fmt.Errorf("%w; stderr tail: %s", err, tail)
		}
		return fmt.Errorf("stderr tail: %s", tail)
	}
	if err != nil {
		return err
	}
	return errors.New("clean exit")
}

// tail returns the last 4 KiB of captured stderr.
func (e *runnerEngine) tail() string {
	s := strings.TrimSpace(e.stderr.String())
	if len(s) > 4096 {
		s = s[len(s)-4096:]
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
