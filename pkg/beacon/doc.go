// Package beacon implements the Simple Beacon vendor model.
//
// The Server answers three requests on one boolean, the report-enable flag:
//
//	Set           write the flag, reply Status with the resulting value
//	SetUnreliable write the flag, no reply
//	Get           reply Status with the current value
//
// The flag itself is owned by a StateHandler supplied by the host. The server
// keeps no copy: every request goes through ReadState or WriteState, and the
// value WriteState returns is what gets reported, even when it differs from the
// requested one.
//
// Besides answering requests the server publishes unsolicited Status and
// ReportStatus messages to its configured publish address.
//
// The Client is the other end: it publishes Set, SetUnreliable and Get,
// waits for the Status answer with retransmission, and hands unsolicited
// Status and ReportStatus messages to callbacks.
//
// Both sides talk to the network through a Transport; *access.Layer is the
// production implementation.
package beacon
