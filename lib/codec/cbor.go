// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	// Record timestamps must survive a round trip to the nanosecond.
	encOptions.Time = cbor.TimeRFC3339Nano
	// ref.Snowflake and friends encode through MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString

	var err error
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// WriteCompressed encodes v and writes it to w as a single zstd frame.
func WriteCompressed(w io.Writer, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("codec: encode: %w", err)
	}
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("codec: zstd writer: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return fmt.Errorf("codec: compress: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("codec: compress: %w", err)
	}
	return nil
}

// ReadCompressed reads a zstd frame from r and decodes it into v.
// maxSize bounds the decompressed size.
func ReadCompressed(r io.Reader, v any, maxSize uint64) error {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderMaxMemory(maxSize))
	if err != nil {
		return fmt.Errorf("codec: zstd reader: %w", err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(io.LimitReader(decoder, int64(maxSize)+1))
	if err != nil {
		return fmt.Errorf("codec: decompress: %w", err)
	}
	if uint64(len(data)) > maxSize {
		return fmt.Errorf("codec: decompressed size exceeds %d bytes", maxSize)
	}
	if err := Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}
