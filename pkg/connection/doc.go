// Package connection keeps a bearer link up across losses.
//
// A Manager dials once and fails fast if that does not work. After that,
// every loss of the link starts a redial loop with exponential backoff:
//
//  1. Initial delay: 500 milliseconds
//  2. Exponential increase: 1s, 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to 500ms on a successful dial
//
// # Jitter
//
// Clients behind the same proxy would otherwise redial in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
