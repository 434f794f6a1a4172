// Package api provides the HTTP API and device WebSocket transport for the
// MIRV relay core.
//
// Devices (rovers and garages) connect over a persistent WebSocket, push
// state updates, and answer relay calls. Operators read fleet state and
// issue commands over plain HTTP; the relay gateway bridges those requests
// onto the async device transport.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
