// Package wire defines the on-air message formats of the Simple Beacon vendor model.
//
// The model exchanges five message kinds, each identified by a one-byte vendor
// opcode. Every payload has a fixed size with no padding and no length prefix:
//
//	Opcode         Value  Length  Layout
//	Set            0xC1   1       [report_enable]
//	Get            0xC2   1       [report_enable] (unused)
//	SetUnreliable  0xC3   1       [report_enable]
//	Status         0xC4   1       [report_enable]
//	ReportStatus   0xC5   16      [custom_data x16]
//
// # Messages
//
// Message is a closed set: only the five types in this package implement it, so a
// type switch over a decoded Message covers every case the protocol can produce.
//
// # Boolean Fields
//
// Single-byte boolean fields travel as raw bytes. Decode keeps the raw byte so a
// receiver can choose its own validation policy; Bool applies the permissive
// non-zero-is-true reading.
//
// The package is a pure transform and has no state.
package wire
