package media

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSampleIndicesHalfRatio(t *testing.T) {
	got := SampleIndices(10, 0.5, 12)
	want := []int{0, 2, 4, 6, 8}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("indices = %v, want %v", got, want)
		}
	}
}

func TestSampleIndicesDeterministic(t *testing.T) {
	a := SampleIndices(97, 0.37, 12)
	b := SampleIndices(97, 0.37, 12)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("run %d differs: %v vs %v", i, a, b)
		}
	}
}

func TestSampleIndicesCappedAndOrdered(t *testing.T) {
	got := SampleIndices(100, 0.5, 12)
	if len(got) != 12 {
		t.Fatalf("len = %d, want cap 12", len(got))
	}
	for i, idx := range got {
		if idx < 0 || idx >= 100 {
			t.Fatalf("index %d out of range: %v", idx, got)
		}
		if i > 0 && idx <= got[i-1] {
			t.Fatalf("indices not strictly increasing: %v", got)
		}
	}
}

func TestSampleIndicesAtLeastOne(t *testing.T) {
	got := SampleIndices(3, 0.1, 12)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("got %v, want [0]", got)
	}
}

func TestSampleIndicesFullRatio(t *testing.T) {
	got := SampleIndices(5, 1.0, 12)
	want := []int{0, 1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len = %d (%v)", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("indices = %v, want %v", got, want)
		}
	}
}

func TestSampleIndicesNoFrames(t *testing.T) {
	if got := SampleIndices(0, 0.5, 12); got != nil {
		t.Fatalf("got %v for empty input", got)
	}
	if got := SampleIndices(-3, 0.5, 12); got != nil {
		t.Fatalf("got %v for negative input", got)
	}
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30000/1001", 29.97002997002997},
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := parseRate(tc.in); got != tc.want {
			t.Fatalf("parseRate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// Exercises the real ffprobe/ffmpeg pipeline against a synthetic clip.
func TestResolveLocalVideoSampling(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	clip := filepath.Join(t.TempDir(), "clip.mp4")
	gen := exec.Command(ffmpeg,
		"-f", "lavfi", "-i", "testsrc=duration=1:size=64x64:rate=10",
		"-pix_fmt", "yuv420p", "-y", clip)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot synthesize test clip: %v (%s)", err, out)
	}

	r := NewResolver(ResolverConfig{FetchTimeout: 2 * time.Second}, zerolog.Nop())
	sc := newScratch(t)

	res, err := r.Resolve(context.Background(), clip, 0.5, sc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindVideo {
		t.Fatalf("kind = %v", res.Kind)
	}
	if len(res.Frames) != 5 {
		t.Fatalf("sampled %d frames from a 10-frame clip at ratio 0.5, want 5: %v", len(res.Frames), res.Frames)
	}
	for _, f := range res.Frames {
		if filepath.Ext(f) != ".jpg" {
			t.Fatalf("frame %q is not a jpg", f)
		}
	}
	if got := res.EnginePaths(); len(got) != len(res.Frames) {
		t.Fatalf("engine paths = %v", got)
	}
}
