package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/nodeflow/coordinator"
	"github.com/kbukum/nodeflow/engine"
	"github.com/kbukum/nodeflow/errors"
	"github.com/kbukum/nodeflow/graph"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/observability"
	"github.com/kbukum/nodeflow/scheduler"
	"github.com/kbukum/nodeflow/script"
	"github.com/kbukum/nodeflow/server"
	"github.com/kbukum/nodeflow/server/endpoint"
	"github.com/kbukum/nodeflow/sse"
)

// DefaultEventsPath serves the SSE stream when Config.EventsPath is empty.
const DefaultEventsPath = "/api/v1/events"

// Config wires an API.
type Config struct {
	ServiceName string
	Coordinator *coordinator.Coordinator
	Catalog     *Catalog
	Registry    *script.Registry
	Hub         *sse.Hub
	// Health aggregates component health; nil reports the coordinator only.
	Health     endpoint.HealthChecker
	EventsPath string
	Logger     *logger.Logger
}

// API serves the nodeflow HTTP routes.
type API struct {
	coord      *coordinator.Coordinator
	catalog    *Catalog
	registry   *script.Registry
	hub        *sse.Hub
	health     endpoint.HealthChecker
	service    string
	eventsPath string
	log        *logger.Logger
}

// New creates an API.
func New(cfg Config) *API {
	a := &API{
		coord:      cfg.Coordinator,
		catalog:    cfg.Catalog,
		registry:   cfg.Registry,
		hub:        cfg.Hub,
		health:     cfg.Health,
		service:    cfg.ServiceName,
		eventsPath: cfg.EventsPath,
		log:        cfg.Logger,
	}
	if a.log == nil {
		a.log = logger.NewNop()
	}
	a.log = a.log.WithComponent("httpapi")
	if a.eventsPath == "" {
		a.eventsPath = DefaultEventsPath
	}
	if a.health == nil {
		a.health = func(ctx context.Context) *observability.ServiceHealth {
			return observability.Check(ctx, a.service, "", a.coord)
		}
	}
	return a
}

// Register mounts every route on r.
func (a *API) Register(r gin.IRouter) {
	r.GET("/health", endpoint.Health(a.health))
	r.GET("/ready", endpoint.Readiness(a.health))
	r.GET("/alive", endpoint.Liveness(a.service))
	r.GET("/info", endpoint.Info(a.service))

	v1 := r.Group("/api/v1")
	v1.GET("/units", a.listUnits)
	v1.GET("/graphs", a.listGraphs)
	v1.POST("/graphs", a.createGraph)
	v1.GET("/graphs/:name", a.getGraph)
	v1.POST("/graphs/:name/passes", a.runPass)
	v1.PUT("/graphs/:name/nodes/:id/parameters/:param", a.setParameter)
	v1.POST("/passes/cancel", a.cancelPass)
	v1.GET("/passes/last", a.lastPass)
	v1.GET("/nodes/:id/outputs", a.nodeOutputs)
	v1.GET("/nodes/:id/metadata", a.nodeMetadata)

	if a.hub != nil {
		r.GET(a.eventsPath, a.events)
	}
}

func (a *API) listUnits(c *gin.Context) {
	if a.registry == nil {
		server.RespondList(c, []script.Info{}, 0)
		return
	}
	units := a.registry.Describe()
	server.RespondList(c, units, len(units))
}

func (a *API) listGraphs(c *gin.Context) {
	graphs := a.catalog.List()
	server.RespondList(c, graphs, len(graphs))
}

// createGraph accepts a YAML or JSON definition body.
func (a *API) createGraph(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	def, err := graph.ParseDefinition(data)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	g, err := a.catalog.Put(def)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	a.log.Info("graph loaded", logger.Fields("graph", g.Name, "nodes", g.Len()))
	server.RespondCreated(c, GraphSummary{
		Name:        g.Name,
		Nodes:       g.Len(),
		Connections: len(g.Connections()),
		Dirty:       len(g.NodesToProcess()),
	})
}

// GraphView is a graph's definition with each node's processing status.
type GraphView struct {
	Definition *graph.Definition            `json:"definition"`
	Status     map[graph.NodeID]graph.Status `json:"status"`
}

func (a *API) getGraph(c *gin.Context) {
	g, err := a.catalog.Get(c.Param("name"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	view := GraphView{Definition: graph.Describe(g), Status: make(map[graph.NodeID]graph.Status)}
	for _, n := range g.Nodes() {
		view.Status[n.ID] = n.Status()
	}
	server.RespondOK(c, view)
}

// PassRequest selects the pass to run. With neither Targets nor Changed a
// full pass runs. Wait blocks until the pass completes.
type PassRequest struct {
	Targets []graph.NodeID `json:"targets"`
	Changed bool           `json:"changed"`
	Wait    bool           `json:"wait"`
	Index   int            `json:"index"`
	Values  map[string]any `json:"values"`
}

// PassView is a pass result with its error code.
type PassView struct {
	engine.Result
	Graph     string           `json:"graph"`
	ErrorCode errors.ErrorCode `json:"error_code,omitempty"`
}

func newPassView(graphName string, res engine.Result) PassView {
	v := PassView{Result: res, Graph: graphName}
	if res.Err != nil {
		v.ErrorCode = errors.CodeOf(res.Err)
	}
	return v
}

func (a *API) runPass(c *gin.Context) {
	g, err := a.catalog.Get(c.Param("name"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	var req PassRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
			return
		}
	}

	env := engine.Environment{GraphName: g.Name, Index: req.Index, Values: req.Values}
	ctx := c.Request.Context()
	mode := scheduler.Full
	var f *coordinator.Future
	switch {
	case req.Changed:
		mode = scheduler.Selective
		f = a.coord.RunChangedAsync(ctx, g, env)
	case req.Targets != nil:
		mode = scheduler.Selective
		f = a.coord.RunPassAsync(ctx, g, env, req.Targets)
	default:
		f = a.coord.RunPassAsync(ctx, g, env, nil)
	}

	if res, done := f.Result(); done && rejected(res.Err) {
		server.RespondWithError(c, res.Err)
		return
	}
	if !req.Wait {
		server.RespondAccepted(c, gin.H{"graph": g.Name, "mode": mode})
		return
	}
	res, err := f.Wait(ctx)
	if err != nil {
		server.RespondWithError(c, errors.Timeout("pass").WithCause(err))
		return
	}
	server.RespondOK(c, newPassView(g.Name, res))
}

func rejected(err error) bool {
	return errors.Is(err, errors.ErrCodeBusy) || errors.Is(err, errors.ErrCodeClosed)
}

// ParameterRequest carries a new parameter value.
type ParameterRequest struct {
	Value any `json:"value"`
}

// setParameter updates a node parameter and marks it and its downstream
// nodes for the next selective pass.
func (a *API) setParameter(c *gin.Context) {
	g, err := a.catalog.Get(c.Param("name"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	id, err := nodeID(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	n, ok := g.Node(id)
	if !ok {
		server.RespondWithError(c, errors.NotFound("node", c.Param("id")))
		return
	}
	var req ParameterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	if a.coord.Running() {
		server.RespondWithError(c, errors.Busy())
		return
	}
	if err := n.SetParameter(c.Param("param"), req.Value); err != nil {
		server.RespondWithError(c, errors.InvalidInput(c.Param("param"), err.Error()).WithCause(err))
		return
	}
	dirty := g.MarkNodeAndDownstream(id)
	server.RespondOK(c, gin.H{"node": id, "dirty": dirty})
}

func (a *API) cancelPass(c *gin.Context) {
	a.coord.Cancel()
	server.RespondAccepted(c, gin.H{"running": a.coord.Running(), "canceled": a.coord.Canceled()})
}

func (a *API) lastPass(c *gin.Context) {
	res, ok := a.coord.LastResult()
	if !ok {
		server.RespondWithError(c, errors.NotFound("pass", "last"))
		return
	}
	server.RespondOK(c, newPassView("", res))
}

func (a *API) nodeOutputs(c *gin.Context) {
	id, err := nodeID(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	outputs, ok := a.coord.Engine().NodeOutput(id)
	if !ok {
		server.RespondWithError(c, errors.NotFound("node outputs", c.Param("id")))
		return
	}
	view := make(map[string]any, len(outputs))
	for port, v := range outputs {
		view[port] = renderable(v)
	}
	server.RespondOK(c, view)
}

func (a *API) nodeMetadata(c *gin.Context) {
	id, err := nodeID(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	md, ok := a.coord.Engine().NodeMetadata(id)
	if !ok {
		server.RespondWithError(c, errors.NotFound("node metadata", c.Param("id")))
		return
	}
	server.RespondOK(c, md)
}

func (a *API) events(c *gin.Context) {
	sse.ServeSSE(a.hub, c.Writer, c.Request, c.Query("graph"))
}

func nodeID(c *gin.Context) (graph.NodeID, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		return 0, errors.InvalidInput("id", "must be a positive integer")
	}
	return graph.NodeID(id), nil
}

// renderable returns v when it encodes as JSON, else a type placeholder.
func renderable(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("<%T>", v)
	}
	return v
}
