// Package transport provides the bearers that carry access PDUs between
// nodes.
//
// Three bearers are available:
//   - LoopbackBearer links two layers in the same process.
//   - StreamServer and StreamClient carry PDUs over TCP.
//   - SerialBearer carries PDUs over a UART to a radio adapter.
//
// # Framing
//
// Stream bearers use a 4-byte big-endian length prefix:
//
//	┌──────────────┬──────────────────────┐
//	│ length (4B)  │ access PDU           │
//	└──────────────┴──────────────────────┘
//
// Serial bearers use SLIP (RFC 1055). Every packet starts and ends with
// 0xC0; 0xC0 and 0xDB inside the packet are sent as 0xDB 0xDC and
// 0xDB 0xDD.
//
// A StreamServer with Relay enabled forwards every inbound PDU to its other
// connections, so stream peers observe each other's traffic the way radio
// nodes would.
package transport
