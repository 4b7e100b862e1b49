package sse

import (
	"github.com/google/uuid"

	"github.com/kbukum/nodeflow/engine"
	"github.com/kbukum/nodeflow/logger"
)

// Client id prefixes. Ids are "all:<uuid>" or "graph:<name>:<uuid>", so the
// two subscription kinds never match each other's patterns.
const (
	allPrefix   = "all:"
	graphPrefix = "graph:"
)

// ClientID returns a fresh client id for a subscription to graphName, or
// to every graph when graphName is empty.
func ClientID(graphName string) string {
	if graphName == "" {
		return allPrefix + uuid.NewString()
	}
	return graphPrefix + graphName + ":" + uuid.NewString()
}

// GraphPattern matches the clients subscribed to graphName.
func GraphPattern(graphName string) string {
	return graphPrefix + graphName + ":*"
}

// AllPattern matches the clients subscribed to every graph.
const AllPattern = allPrefix + "*"

// Notifier broadcasts engine notifications through a Broadcaster. It
// implements engine.Observer.
type Notifier struct {
	b   Broadcaster
	log *logger.Logger
}

// NewNotifier creates a Notifier. A nil logger disables logging.
func NewNotifier(b Broadcaster, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &Notifier{b: b, log: log.WithComponent("sse")}
}

// PassCompleted broadcasts a pass.completed event to the graph's
// subscribers and to clients subscribed to everything.
func (n *Notifier) PassCompleted(ev engine.PassEvent) {
	name := ""
	if ev.Graph != nil {
		name = ev.Graph.Name
	}
	data, err := Encode(EventTypePassCompleted, NewPassCompletedEvent(name, ev.Result))
	if err != nil {
		n.log.Error("encode pass event", logger.MergeWithError(logger.Fields(logger.FieldPassID, ev.Result.PassID), err))
		return
	}
	if name != "" {
		n.b.BroadcastToPattern(GraphPattern(name), data)
	}
	n.b.BroadcastToPattern(AllPattern, data)
}

// Progress broadcasts a node.progress event to clients subscribed to
// everything. Its signature matches engine.ProgressFunc.
func (n *Notifier) Progress(done, total int, nr engine.NodeResult) {
	data, err := Encode(EventTypeNodeProgress, NodeProgressEvent{
		Done:   done,
		Total:  total,
		NodeID: nr.ID,
		Title:  nr.Title,
		Status: string(nr.Status),
		Error:  nr.Message,
	})
	if err != nil {
		n.log.Error("encode progress event", logger.ErrorFields("progress", err))
		return
	}
	n.b.BroadcastToPattern(AllPattern, data)
}

var _ engine.Observer = (*Notifier)(nil)
