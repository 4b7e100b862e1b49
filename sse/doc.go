// Package sse streams pass notifications to HTTP clients as Server-Sent
// Events.
//
// A Hub owns the connected clients and fans messages out by glob pattern
// on client ids. Notifier turns engine pass events into JSON messages and
// broadcasts them: clients subscribed to one graph receive that graph's
// passes, clients subscribed to everything receive every pass and node
// progress update.
package sse
