// Package server hosts the nodeflow HTTP adapter: a Gin engine behind an
// h2c handler so SSE streams can be multiplexed over cleartext HTTP/2.
//
// Middleware lives in server/middleware and the health and build info
// endpoints in server/endpoint. The nodeflow API routes are registered by
// package httpapi.
package server
