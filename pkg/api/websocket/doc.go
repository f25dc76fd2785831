// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/runs/:id/ws and receive a snapshot of the run
// followed by its lifecycle events until the run finishes.
package websocket
