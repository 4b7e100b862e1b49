package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/scheduler"
)

// Environment describes the context a pass runs in.
type Environment = graph.Environment

// NodeStatus is the outcome of one node within a pass.
type NodeStatus string

const (
	NodeProcessed NodeStatus = "processed"
	NodeFailed    NodeStatus = "failed"
	// NodeCached marks a node whose stored outputs were reused.
	NodeCached NodeStatus = "cached"
)

// NodeResult records what happened to one node.
type NodeResult struct {
	ID       graph.NodeID  `json:"id"`
	Title    string        `json:"title"`
	Script   string        `json:"script"`
	Status   NodeStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts,omitempty"`
	Error    error         `json:"-"`
	Message  string        `json:"error,omitempty"`
}

// Result summarizes a pass.
type Result struct {
	PassID         string                      `json:"pass_id"`
	Mode           scheduler.Mode              `json:"mode"`
	Succeeded      bool                        `json:"succeeded"`
	ProcessedCount int                         `json:"processed_count"`
	FailedCount    int                         `json:"failed_count"`
	CachedCount    int                         `json:"cached_count"`
	Order          []graph.NodeID              `json:"order"`
	Nodes          map[graph.NodeID]NodeResult `json:"nodes"`
	Duration       time.Duration               `json:"duration"`
	Err            error                       `json:"-"`
	Message        string                      `json:"message"`
}

// Failed returns the ids of failed nodes, sorted.
func (r Result) Failed() []graph.NodeID {
	var ids []graph.NodeID
	for id, nr := range r.Nodes {
		if nr.Status == NodeFailed {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Processed returns the ids of nodes executed successfully, in pass order.
func (r Result) Processed() []graph.NodeID {
	var ids []graph.NodeID
	for _, id := range r.Order {
		if r.Nodes[id].Status == NodeProcessed {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Result) add(nr NodeResult) {
	r.Nodes[nr.ID] = nr
	switch nr.Status {
	case NodeProcessed:
		r.ProcessedCount++
	case NodeFailed:
		r.FailedCount++
	case NodeCached:
		r.CachedCount++
	}
}

func (r *Result) summarize() {
	r.Succeeded = r.Err == nil && r.ProcessedCount > 0
	if r.Err != nil {
		r.Message = r.Err.Error()
		return
	}
	r.Message = fmt.Sprintf("%s pass: %d processed, %d failed, %d cached in %s",
		r.Mode, r.ProcessedCount, r.FailedCount, r.CachedCount, r.Duration.Round(time.Millisecond))
}

// PassEvent is delivered to observers after a pass completes.
type PassEvent struct {
	Graph  *graph.Graph
	Result Result
}

// Observer receives pass-completed notifications.
type Observer interface {
	PassCompleted(ev PassEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev PassEvent)

// PassCompleted calls f(ev).
func (f ObserverFunc) PassCompleted(ev PassEvent) { f(ev) }

// ProgressFunc is called after each scheduled node with the number of
// nodes handled so far.
type ProgressFunc func(done, total int, nr NodeResult)
