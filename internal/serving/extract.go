package serving

import (
	"strings"

	"vlmd/internal/media"
	"vlmd/pkg/types"
)

// extract flattens a conversation into a single prompt plus the media
// references found in user messages, preserving order of appearance. System
// messages are ignored with a warning; assistant turns carry no new inputs.
func (s *Service) extract(messages []types.ChatMessage) (string, []string, error) {
	if len(messages) == 0 {
		return "", nil, ErrValidation("messages must not be empty")
	}
	var texts []string
	var refs []string
	for _, m := range messages {
		switch m.Role {
		case types.RoleUser:
		case types.RoleSystem:
			s.log.Warn().Msg("system messages are not supported and will be ignored")
			continue
		default:
			continue
		}
		if !m.Content.IsParts() {
			if t := strings.TrimSpace(m.Content.Text); t != "" {
				texts = append(texts, t)
			}
			continue
		}
		for _, p := range m.Content.Parts {
			switch p.Type {
			case types.PartText:
				if t := strings.TrimSpace(p.Text); t != "" {
					texts = append(texts, t)
				}
			case types.PartImageURL:
				if p.ImageURL == nil || strings.TrimSpace(p.ImageURL.URL) == "" {
					return "", nil, ErrValidation("image_url part is missing a url")
				}
				refs = append(refs, p.ImageURL.URL)
			default:
				return "", nil, ErrValidation("unknown content part type %q", p.Type)
			}
		}
	}
	prompt := strings.Join(texts, " ")
	if prompt == "" && len(refs) == 0 {
		return "", nil, ErrValidation("request has no user text or media")
	}
	return prompt, refs, nil
}

// checkMediaMix enforces the clip constraint: at most one video per request,
// never combined with images.
func checkMediaMix(resolved []*media.Resolved) error {
	var videos, images int
	for _, r := range resolved {
		if r.Kind == media.KindVideo {
			videos++
		} else {
			images++
		}
	}
	if videos > 1 {
		return ErrValidation("at most one video is allowed per request")
	}
	if videos > 0 && images > 0 {
		return ErrValidation("a video cannot be combined with images in one request")
	}
	return nil
}

// engineMedia maps resolved media to the path list and kind the engine takes.
// For a video the paths are its sampled frames in temporal order.
func engineMedia(resolved []*media.Resolved) (paths []string, kind string) {
	if len(resolved) == 0 {
		return nil, ""
	}
	if resolved[0].Kind == media.KindVideo {
		return resolved[0].Frames, string(media.KindVideo)
	}
	paths = make([]string, len(resolved))
	for i, r := range resolved {
		paths[i] = r.Path
	}
	return paths, string(media.KindImage)
}

// defaultPrompt is used when a request carries media but no text.
func defaultPrompt(kind media.Kind) string {
	if kind == media.KindVideo {
		return "Describe this video in detail."
	}
	return "Describe this image in detail."
}
