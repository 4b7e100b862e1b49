package sse

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/nodeflow/logger"
)

// KeepAliveInterval is shorter than typical proxy idle timeouts.
var KeepAliveInterval = 30 * time.Second

// ServeSSE streams hub messages to one client until the request context
// ends or the hub stops. graphName limits the stream to one graph; empty
// subscribes to everything.
func ServeSSE(hub *Hub, w http.ResponseWriter, r *http.Request, graphName string, opts ...ClientOption) {
	log := hub.log
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Long-lived streams must not hit the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not disable write deadline", logger.ErrorFields("sse", err))
	}

	if graphName != "" {
		opts = append(opts, WithGraph(graphName))
	}
	client := NewClient(ClientID(graphName), opts...)
	if !hub.Register(client) {
		http.Error(w, "event hub stopped", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	connected, err := Encode(EventTypeConnected, ConnectedEvent{
		ClientID: client.ID(),
		Graph:    graphName,
		Metadata: client.Metadata(),
	})
	if err == nil {
		writeEvent(w, EventTypeConnected, connected)
		flusher.Flush()
	}
	log.Debug("client connected", logger.Fields("client_id", client.ID(), "graph", graphName, "remote_addr", r.RemoteAddr))

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected", logger.Fields("client_id", client.ID()))
			return
		case data, ok := <-client.Events():
			if !ok {
				return
			}
			writeEvent(w, "", data)
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": %s %d\n\n", EventTypeKeepAlive, time.Now().Unix())
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data []byte) {
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}
