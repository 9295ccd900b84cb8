// Package ws implements the WebSocket hub for mncserver.
//
// Each client watches one key prefix, chosen with ?prefix= (default /mon/).
// On connect the hub sends a snapshot of every key under the prefix, then
// one message per put:
//
//	{"event": "snapshot", "key": "/mon/ant/", "data": {"/mon/ant/1": {...}, ...}}
//	{"event": "update",   "key": "/mon/ant/1", "data": {...}}
//
// Deletes are not streamed. A client whose outgoing buffer fills is
// disconnected and its watch cancelled. Hub.Run blocks until its context is
// cancelled, then closes every connection.
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream by the server.
package ws
