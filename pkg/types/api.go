package types

// ErrorResponse is the OpenAI-style error envelope returned on every failure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error message and a coarse machine-readable type.
type ErrorDetail struct {
	// Human-readable description. Never echoes credentials or engine internals.
	// example: unsupported media reference: ftp://host/cat.jpg
	Message string `json:"message" example:"unsupported media reference"`
	// One of: invalid_request_error, authentication_error, media_error,
	// overloaded_error, engine_error, not_found_error.
	// example: media_error
	Type string `json:"type" example:"media_error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// "ok" while serving, "degraded" when broken slots reduced capacity.
	// example: ok
	Status string `json:"status" example:"ok"`
	// Optional human-readable note, set when degraded.
	Details string `json:"details,omitempty"`
	// Served model identifier.
	// example: qwen3-vl-instruct
	Model string `json:"model" example:"qwen3-vl-instruct"`
	// Directory the model artifacts were loaded from.
	ModelDir string `json:"model_dir"`
	// Configured concurrency ceiling (pool size).
	// example: 2
	MaxConcurrent int `json:"max_concurrent" example:"2"`
	// Slots currently free.
	SlotsFree int `json:"slots_free"`
	// Slots permanently out of service.
	SlotsBroken int `json:"slots_broken"`
	// Whether API-key auth is enforced on /v1 routes.
	APIAuthEnabled bool `json:"api_auth_enabled"`
	// RFC 3339 server time.
	Timestamp string `json:"timestamp"`
	// Server version string.
	// example: 2.2.0
	Version string `json:"version" example:"2.2.0"`
}

// ModelList is returned by GET /v1/models.
type ModelList struct {
	// Always "list".
	Object string `json:"object" example:"list"`
	Data   []ModelCard `json:"data"`
}

// ModelCard describes one served model.
type ModelCard struct {
	// example: qwen3-vl-instruct
	ID string `json:"id" example:"qwen3-vl-instruct"`
	// Always "model".
	Object  string `json:"object" example:"model"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Root    string `json:"root,omitempty"`
	// Free-form capability summary.
	Description string `json:"description,omitempty"`
}

// DescribeResponse is the non-streaming response of POST /v1/media/describe.
type DescribeResponse struct {
	// example: success
	Status      string           `json:"status" example:"success"`
	Description string           `json:"description"`
	Metadata    DescribeMetadata `json:"metadata"`
}

// DescribeMetadata records how an uploaded file was processed.
type DescribeMetadata struct {
	Filename  string `json:"filename"`
	// "image" or "video".
	MediaType string `json:"media_type" example:"image"`
	Prompt    string `json:"prompt"`
	// Wall-clock processing time.
	ProcessingTime float64 `json:"processing_time_seconds"`
	Model          string  `json:"model"`
	ModelDir       string  `json:"model_dir"`
}

// ServiceInfo is returned by GET / as a quick orientation payload.
type ServiceInfo struct {
	// example: vlmd
	Service string `json:"service" example:"vlmd"`
	Version string `json:"version"`
	Model   string `json:"model"`
	ModelDir string `json:"model_dir"`
	// Accelerator device the pool is bound to.
	DeviceID      int  `json:"device_id"`
	MaxConcurrent int  `json:"max_concurrent"`
	AuthEnabled   bool `json:"auth_enabled"`
	// Routable endpoints.
	Endpoints []string `json:"endpoints"`
	// Accepted file extensions.
	ImageFormats []string `json:"image_formats"`
	VideoFormats []string `json:"video_formats"`
}
