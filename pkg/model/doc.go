// Package model implements the mesh node data model.
//
// # Node Hierarchy
//
// A node uses a 3-level hierarchy:
//
//	Node > Element > Model
//
// A Node represents one physical device. It contains one or more Elements, each an
// addressable unit with its own unicast address. Elements host Models: protocol
// endpoints identified by a company ID and a model ID.
//
//	Node (uuid 8f3c...)
//	├── Element 0 (0x0010)
//	│   └── Simple Beacon Server {0x0059, 0x0000}
//	└── Element 1 (0x0011)
//	    └── ...
//
// # Registration
//
// Models are registered once per element with AddModel, which hands back a Handle.
// The handle is the identity every later send uses. A model ID may appear at most
// once per element; a second registration fails with ErrDuplicateOnElement and
// leaves the first one untouched.
//
// # Configuration
//
// Each model instance carries the configuration normally written by a provisioner:
// publication parameters, app key bindings and a subscription list. Reset clears
// all of it, and the unicast address, without removing registrations.
package model
