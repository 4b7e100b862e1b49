// Package httpapi exposes nodeflow over HTTP: graph management, pass
// requests through the coordinator, node output and metadata queries, and
// the SSE pass notification stream.
//
//	GET    /api/v1/units
//	GET    /api/v1/graphs
//	POST   /api/v1/graphs
//	GET    /api/v1/graphs/:name
//	POST   /api/v1/graphs/:name/passes
//	PUT    /api/v1/graphs/:name/nodes/:id/parameters/:param
//	POST   /api/v1/passes/cancel
//	GET    /api/v1/passes/last
//	GET    /api/v1/nodes/:id/outputs
//	GET    /api/v1/nodes/:id/metadata
//	GET    /api/v1/events
package httpapi
