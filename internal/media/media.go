// Package media turns client-supplied media references (local paths, file://
// URIs, base64 data URIs and remote URLs) into validated local files ready
// for the engine, including deterministic video frame sampling.
package media

import (
	"path/filepath"
	"sort"
	"strings"
)

// Kind is the media class of a resolved reference.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".bmp": {}, ".gif": {}, ".webp": {},
}

var videoExts = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".flv": {}, ".wmv": {},
}

// ImageExts lists accepted image extensions without the leading dot.
func ImageExts() []string { return extList(imageExts) }

// VideoExts lists accepted video extensions without the leading dot.
func VideoExts() []string { return extList(videoExts) }

func extList(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for e := range m {
		out = append(out, strings.TrimPrefix(e, "."))
	}
	sort.Strings(out)
	return out
}

// KindForPath classifies a filename by extension.
func KindForPath(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExts[ext]; ok {
		return KindImage, true
	}
	if _, ok := videoExts[ext]; ok {
		return KindVideo, true
	}
	return "", false
}

// RefKind is the syntactic form of a reference.
type RefKind int

const (
	RefLocal RefKind = iota
	RefFileURI
	RefBase64
	RefRemote
)

// Reference is a parsed, not yet resolved, media reference.
type Reference struct {
	Raw  string
	Kind RefKind
}

// ParseReference classifies a raw reference string. Parsing is pure; any
// form the resolver has no handler for fails here as unsupported.
func ParseReference(raw string) (Reference, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return Reference{}, newError(ReasonUnsupported, raw, "empty reference", nil)
	case strings.HasPrefix(s, "data:"):
		return Reference{Raw: s, Kind: RefBase64}, nil
	case strings.HasPrefix(s, "file://"):
		return Reference{Raw: s, Kind: RefFileURI}, nil
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return Reference{Raw: s, Kind: RefRemote}, nil
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "./"), strings.HasPrefix(s, "../"):
		return Reference{Raw: s, Kind: RefLocal}, nil
	default:
		return Reference{}, newError(ReasonUnsupported, raw, "unrecognized reference form", nil)
	}
}

// Resolved is a reference turned into engine-ready local files.
type Resolved struct {
	Kind Kind
	// Path is the validated media file. For client-local files this is the
	// original path, never a copy.
	Path string
	// Frames are sampled video frames in temporal order; empty for images.
	Frames []string
	// Ratio is the sampling ratio applied to a video.
	Ratio float64
	// Image dimensions when known.
	Width, Height int
}

// EnginePaths returns the file list handed to the engine: the still for an
// image, the sampled frames for a video.
func (r *Resolved) EnginePaths() []string {
	if r.Kind == KindVideo {
		return r.Frames
	}
	return []string{r.Path}
}
