package serving

import (
	"fmt"
	"time"

	"vlmd/internal/config"
	"vlmd/internal/media"
	"vlmd/pkg/types"
)

// Health reports liveness plus pool capacity. Status degrades when broken
// slots have shrunk capacity below the configured ceiling.
func (s *Service) Health() types.HealthResponse {
	st := s.pool.Stats()
	status := "ok"
	details := ""
	if st.Broken > 0 {
		status = "degraded"
		details = fmt.Sprintf("%d of %d slots retired after engine failures", st.Broken, st.Size)
	}
	return types.HealthResponse{
		Status:         status,
		Details:        details,
		Model:          s.cfg.ModelName,
		ModelDir:       s.cfg.ModelDir,
		MaxConcurrent:  st.Size,
		SlotsFree:      st.Free,
		SlotsBroken:    st.Broken,
		APIAuthEnabled: s.cfg.AuthEnabled(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Version:        config.Version,
	}
}

// Info is the GET / orientation payload.
func (s *Service) Info() types.ServiceInfo {
	return types.ServiceInfo{
		Service:       "vlmd",
		Version:       config.Version,
		Model:         s.cfg.ModelName,
		ModelDir:      s.cfg.ModelDir,
		DeviceID:      s.cfg.DeviceID,
		MaxConcurrent: s.cfg.MaxConcurrent,
		AuthEnabled:   s.cfg.AuthEnabled(),
		Endpoints: []string{
			"/",
			"/health",
			"/metrics",
			"/docs",
			"/v1/chat/completions",
			"/v1/media/describe",
			"/v1/models",
		},
		ImageFormats: media.ImageExts(),
		VideoFormats: media.VideoExts(),
	}
}

// Models lists the single served model in OpenAI list form.
func (s *Service) Models() types.ModelList {
	return types.ModelList{Object: "list", Data: []types.ModelCard{s.modelCard()}}
}

// Model returns the card for id, or false when the id is not served.
func (s *Service) Model(id string) (types.ModelCard, bool) {
	if id != s.cfg.ModelName {
		return types.ModelCard{}, false
	}
	return s.modelCard(), true
}

func (s *Service) modelCard() types.ModelCard {
	return types.ModelCard{
		ID:          s.cfg.ModelName,
		Object:      "model",
		Created:     s.started.Unix(),
		OwnedBy:     "vlmd",
		Root:        s.cfg.ModelDir,
		Description: "Vision-language chat model serving images and sampled video frames.",
	}
}
