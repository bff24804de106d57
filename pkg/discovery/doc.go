// Package discovery announces and finds beacon nodes over mDNS/DNS-SD.
//
// A node that runs a stream bearer advertises one _sbeacon._tcp service.
// Clients browse for it to find a proxy into the network without knowing
// its IP address.
//
// # TXT Records
//
//   - id:   node UUID
//   - addr: primary unicast address as 4 hex digits, "0000" when unprovisioned
//   - cid:  company identifier of the beacon models as 4 hex digits
//   - el:   element count
//   - name: optional friendly name
//
// Instance name format: beacon-<first 8 hex digits of the UUID>
package discovery
