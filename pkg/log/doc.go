// Package log captures protocol events for a beacon node.
//
// It is separate from operational logging (slog). Protocol capture keeps a
// machine-readable trace of every PDU and access message so a session can be
// replayed and filtered after the fact.
//
// Components take a Logger in their config:
//
//	// Console, via slog at Debug level
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Capture file
//	fl, _ := log.NewFileLogger("/var/log/beacon/node.sbl")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Events are captured at three layers:
//   - Bearer: raw PDUs as framed on a stream or serial link (FrameEvent)
//   - Access: parsed messages with addressing (MessageEvent)
//   - Model: state changes such as the report-enable flag (StateChangeEvent)
//
// Capture files are a plain sequence of CBOR-encoded events. The beacon-log
// command prints and filters them.
package log
