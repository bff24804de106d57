// Package persistence stores the runtime state of a beacon node so that
// provisioning and the beacon flag survive restarts.
//
// State is written as a CBOR file. Writes go to a temporary file that is
// renamed over the previous state, so a crash never leaves a partial file.
package persistence
