// Package model defines stable boundary types for tooling and API layers.
//
// Protocol identity (canonical batch bytes and digests) is unaffected by any
// projection. These structs are the only types intended for direct JSON
// serialization by consumers; they compile to and from the canonical batch
// types in package batch.
package model
