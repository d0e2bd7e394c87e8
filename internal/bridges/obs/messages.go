package obs

// Operation names understood by the scene bridge.
const (
	OpConnect      = "connect"
	OpDisconnect   = "disconnect"
	OpListElements = "list_elements"
	OpDuplicate    = "duplicate"
	OpSetEnabled   = "set_enabled"
	OpRemove       = "remove"
)

// Request is published by Core to the scene bridge.
// Topic: flashcue/request/obs/{target_id}
type Request struct {
	// RequestID correlates the response. Always set.
	RequestID string `json:"request_id"`

	Op      string `json:"op"`
	Scene   string `json:"scene,omitempty"`
	Element string `json:"element,omitempty"`
	Handle  *int64 `json:"handle,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`

	// Connect only.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Password string `json:"password,omitempty"`
}

// Response is published by the scene bridge for every Request.
// Topic: flashcue/response/obs/{request_id}
type Response struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`

	// Elements answers list_elements, in scene order.
	Elements []string `json:"elements,omitempty"`

	// Handle answers duplicate.
	Handle *int64 `json:"handle,omitempty"`
}
