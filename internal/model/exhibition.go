package model

// ExhibitionStatus represents exhibition lifecycle state.
type ExhibitionStatus string

const (
	ExhibitionUpcoming ExhibitionStatus = "UPCOMING"
	ExhibitionLive     ExhibitionStatus = "LIVE"
	ExhibitionArchived ExhibitionStatus = "ARCHIVED"
)

// ExhibitionType distinguishes live-streamed events from static collections.
type ExhibitionType string

const (
	TypeLive           ExhibitionType = "LIVE"
	TypeClassification ExhibitionType = "CLASSIFICATION"
)

// StreamStatus is the server-authoritative state of the live stream.
type StreamStatus string

const (
	StreamIdle         StreamStatus = "IDLE"
	StreamStreaming    StreamStatus = "STREAMING"
	StreamDisconnected StreamStatus = "DISCONNECTED"
)

// Role of a live-session participant.
type Role string

const (
	RoleAuthor Role = "AUTHOR"
	RoleViewer Role = "VIEWER"
)

// LiveDetails — вложенная запись живой трансляции; имеет смысл только при Type == LIVE.
type LiveDetails struct {
	StreamStatus   StreamStatus `json:"stream_status"`
	CurrentViewers int          `json:"current_viewers"`
	RecordingPath  string       `json:"recording_path,omitempty"`
	TotalViews     int          `json:"total_views"`
}

// Exhibition is the API view of an exhibition (read-only to the live session core).
type Exhibition struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Status      ExhibitionStatus `json:"status"`
	Type        ExhibitionType   `json:"type"`
	IsPublished bool             `json:"is_published"`
	BannerURL   string           `json:"banner_url,omitempty"`
	LiveDetails *LiveDetails     `json:"live_details,omitempty"`
}

// Streamable reports whether a live session can still be joined or started.
// Archived exhibitions are terminal; CLASSIFICATION exhibitions have no stream.
func (e *Exhibition) Streamable() bool {
	return e.Status != ExhibitionArchived && e.Type == TypeLive
}

// CurrentStreamStatus returns the stream status, defaulting to IDLE when
// live_details is absent.
func (e *Exhibition) CurrentStreamStatus() StreamStatus {
	if e.LiveDetails == nil || e.LiveDetails.StreamStatus == "" {
		return StreamIdle
	}
	return e.LiveDetails.StreamStatus
}
