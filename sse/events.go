package sse

import (
	"encoding/json"
	"time"

	"github.com/kbukum/nodeflow/engine"
	"github.com/kbukum/nodeflow/graph"
)

// Event types carried in the "type" field of every message.
const (
	EventTypeConnected     = "connected"
	EventTypeKeepAlive     = "keepalive"
	EventTypePassCompleted = "pass.completed"
	EventTypeNodeProgress  = "node.progress"
)

// Envelope wraps every message sent to clients.
type Envelope struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// ConnectedEvent is sent when a client successfully connects.
type ConnectedEvent struct {
	ClientID string            `json:"client_id"`
	Graph    string            `json:"graph,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PassCompletedEvent summarizes a finished pass.
type PassCompletedEvent struct {
	PassID     string         `json:"pass_id"`
	Graph      string         `json:"graph"`
	Mode       string         `json:"mode"`
	Succeeded  bool           `json:"succeeded"`
	Processed  int            `json:"processed"`
	Failed     int            `json:"failed"`
	Cached     int            `json:"cached"`
	FailedIDs  []graph.NodeID `json:"failed_ids,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Message    string         `json:"message"`
}

// NodeProgressEvent reports one node handled within a running pass.
type NodeProgressEvent struct {
	Done   int          `json:"done"`
	Total  int          `json:"total"`
	NodeID graph.NodeID `json:"node_id"`
	Title  string       `json:"title"`
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// NewPassCompletedEvent builds the event for a pass result.
func NewPassCompletedEvent(graphName string, res engine.Result) PassCompletedEvent {
	return PassCompletedEvent{
		PassID:     res.PassID,
		Graph:      graphName,
		Mode:       string(res.Mode),
		Succeeded:  res.Succeeded,
		Processed:  res.ProcessedCount,
		Failed:     res.FailedCount,
		Cached:     res.CachedCount,
		FailedIDs:  res.Failed(),
		DurationMs: res.Duration.Milliseconds(),
		Message:    res.Message,
	}
}

// Encode marshals an event in its envelope.
func Encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: eventType, Time: time.Now().UTC(), Data: data})
}
