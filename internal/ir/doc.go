// Package ir provides the canonical value and scene representation types for
// the x3drouter event engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Field values are a sealed tagged variant (Value). Only the SF and MF
//     types declared here implement it.
//   - Node references are arena handles (NodeID), never pointers, so cyclic
//     scene graphs (SFNode/MFNode fields pointing back up the tree) are safe.
//   - Values are immutable once stored: nodes keep a Clone of anything they
//     receive, so MF slices are never shared between two nodes.
//   - Canonical encoding (MarshalCanonical) is the only serialization used
//     for value hashes and frame digests.
package ir
