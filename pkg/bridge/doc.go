// Package bridge streams capture events to remote viewers over TCP.
//
// The bridge exists so a laptop in the pit can watch pack telemetry
// captured by a small computer in the vehicle. The server side sits
// next to the capture pipeline and implements capture.Sink: every event
// logged to it is fanned out to all connected clients. The client side
// is a thin authenticated subscriber.
//
// # Protocol
//
// Messages are CBOR envelopes in 4-byte big-endian length-prefixed
// frames. On connect the server sends a challenge (random salt and
// nonce); the client proves knowledge of the shared passphrase with an
// HMAC over the nonce, keyed by an HKDF-SHA256 derivation of the
// passphrase. No encryption is applied: the bridge carries telemetry
// readable by anyone with bus access anyway, and runs on closed pit
// networks. The passphrase gate only keeps casual clients out.
//
// Servers can announce themselves on the local network via mDNS under
// the _celltrace._tcp service type.
package bridge
