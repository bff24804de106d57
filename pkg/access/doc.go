// Package access implements the access layer of a beacon node.
//
// A Layer owns the node's model registrations. Bearers hand it raw PDUs
// through Receive; it resolves the destination (own unicast element, a
// subscribed group, or all-nodes), checks the app key binding and calls the
// handler of every matching model, one message at a time.
//
// Outbound, Reply answers the source of a received message and Publish sends
// to a model's configured publish address. Both fail synchronously:
//
//	ErrNullArgument    missing request
//	ErrNoMemory        no bearer accepted the PDU
//	ErrNotBound        publish app key not bound to the model
//	ErrInvalidAddress  node unprovisioned or reply target not unicast
//	ErrInvalidParam    no publish address, unknown handle or non-vendor opcode
//	ErrPayloadTooLarge opcode plus parameters exceed MaxMessageSize
//
// PDU layout (network fields big-endian, opcode as on air):
//
//	| src 2 | dst 2 | ttl 1 | appkey 2 | code 1 | company 2 (LE) | params |
package access
