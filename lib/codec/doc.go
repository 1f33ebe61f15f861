// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the agent's on-disk encoding: CBOR with Core
// Deterministic Encoding, optionally wrapped in a zstd frame.
//
// JSON stays the format for everything exchanged with the chat
// platform and the content source. CBOR is used only for state the
// agent writes for itself, currently the event log spool that carries
// unsent telemetry across a restart.
//
//	err := codec.WriteCompressed(file, records)
//	err = codec.ReadCompressed(file, &records)
//
// Types serialized only here use `cbor` struct tags. Types shared with
// JSON use `json` tags alone; fxamacker/cbor falls back to them.
package codec
