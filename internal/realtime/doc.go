// Package realtime delivers group events to connected clients over
// WebSocket.
//
// The Hub holds at most one connection per user, keyed by user id; a
// reconnect displaces the previous connection. Each connection captures
// its group scope (the user's memberships) at handshake time and the
// scope stays fixed for the connection's lifetime, so membership changes
// take effect on the next connect.
//
// Fan-out is best effort: BroadcastToGroup snapshots the matching
// connections under a read lock, releases it, then hands the
// pre-marshalled frame to each connection's buffered send channel. A
// slow or dead connection drops frames rather than blocking the hub.
//
// The EventRouter is the write side's entry point: HTTP handlers commit
// a state change, then publish the corresponding event through the
// router, which never reports delivery failure back.
package realtime
