package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SampleIndices picks evenly spaced, strictly increasing frame indices.
// count = clamp(round(total*ratio), 1, max); the cap keeps the processed
// window within what the model attends to (roughly 12s at 1 fps). The result
// is a pure function of (total, ratio, max).
func SampleIndices(total int, ratio float64, max int) []int {
	if total <= 0 {
		return nil
	}
	n := int(math.Round(float64(total) * ratio))
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	if n > total {
		n = total
	}
	step := float64(total) / float64(n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = int(float64(i) * step)
	}
	return idx
}

// sampleVideo probes the stream and extracts ratio-spaced frames as JPEGs
// into a fresh scratch subdirectory, preserving temporal order.
func (r *Resolver) sampleVideo(ctx context.Context, ref, path string, ratio float64, sc *Scratch) ([]string, error) {
	probe, err := r.probeVideo(ctx, path)
	if err != nil {
		return nil, newError(ReasonDecodeFailed, ref, "probe failed", err)
	}
	if probe.frames <= 0 {
		return nil, newError(ReasonDecodeFailed, ref, "no video frames", nil)
	}
	indices := SampleIndices(probe.frames, ratio, r.cfg.MaxFrames)
	dir, err := sc.SubDir()
	if err != nil {
		return nil, err
	}
	if err := r.extractFrames(ctx, path, indices, dir); err != nil {
		return nil, newError(ReasonDecodeFailed, ref, "frame extraction failed", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, newError(ReasonDecodeFailed, ref, "no frames extracted", nil)
	}
	frames := make([]string, len(names))
	for i, n := range names {
		frames[i] = filepath.Join(dir, n)
	}
	r.log.Debug().
		Int("total_frames", probe.frames).
		Int("sampled", len(frames)).
		Float64("ratio", ratio).
		Msg("video sampled")
	return frames, nil
}

type probeResult struct {
	frames int
	width  int
	height int
}

// probeVideo reads stream metadata. nb_frames is authoritative when the
// container carries it; otherwise duration x frame rate approximates.
func (r *Resolver) probeVideo(ctx context.Context, path string) (probeResult, error) {
	bin, err := exec.LookPath(r.cfg.FFprobeBin)
	if err != nil {
		return probeResult{}, fmt.Errorf("ffprobe unavailable: %w", err)
	}
	out, err := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames,avg_frame_rate,duration,width,height",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return probeResult{}, fmt.Errorf("ffprobe: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return probeResult{}, fmt.Errorf("ffprobe: %w", err)
	}
	var doc struct {
		Streams []struct {
			NBFrames     string `json:"nb_frames"`
			AvgFrameRate string `json:"avg_frame_rate"`
			Duration     string `json:"duration"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		return probeResult{}, fmt.Errorf("ffprobe output: %w", err)
	}
	if len(doc.Streams) == 0 {
		return probeResult{}, errors.New("no video stream")
	}
	s := doc.Streams[0]
	res := probeResult{width: s.Width, height: s.Height}
	if n, err := strconv.Atoi(s.NBFrames); err == nil && n > 0 {
		res.frames = n
		return res, nil
	}
	dur, _ := strconv.ParseFloat(s.Duration, 64)
	if fps := parseRate(s.AvgFrameRate); dur > 0 && fps > 0 {
		res.frames = int(dur * fps)
	}
	return res, nil
}

// parseRate parses ffprobe rational rates like "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// extractFrames runs one ffmpeg pass selecting exactly the given frame
// indices, emitting frame_%03d.jpg into dir in input order.
func (r *Resolver) extractFrames(ctx context.Context, path string, indices []int, dir string) error {
	bin, err := exec.LookPath(r.cfg.FFmpegBin)
	if err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}
	terms := make([]string, len(indices))
	for i, n := range indices {
		terms[i] = fmt.Sprintf(`eq(n\,%d)`, n)
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-i", path,
		"-vf", "select="+strings.Join(terms, "+"),
		"-vsync", "0",
		filepath.Join(dir, "frame_%03d.jpg"),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("ffmpeg: %v: %s", err, msg)
	}
	return nil
}
