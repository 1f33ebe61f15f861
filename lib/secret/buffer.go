// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrEmpty is returned when a secret source holds no data.
var ErrEmpty = errors.New("secret: empty secret")

const redacted = "[redacted]"

// Buffer is a protected copy of a secret. It must not be copied after
// creation.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	locked bool
	closed bool
}

// NewFromBytes copies source into a protected region and zeroes source.
//
// mlock is attempted but its failure is tolerated: unprivileged
// containers commonly cap RLIMIT_MEMLOCK at zero. Locked reports the
// outcome.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, ErrEmpty
	}

	data, err := unix.Mmap(-1, 0, len(source), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	locked := unix.Mlock(data) == nil

	copy(data, source)
	zero(source)
	return &Buffer{data: data, locked: locked}, nil
}

// NewFromString copies s into a protected region. The string itself
// cannot be zeroed; use this only for values that already passed
// through configuration as strings.
func NewFromString(s string) (*Buffer, error) {
	return NewFromBytes([]byte(s))
}

// ReadFile reads a secret from path, trimming surrounding whitespace.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	defer zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: %s: %w", path, ErrEmpty)
	}
	return NewFromBytes(trimmed)
}

// Bytes returns a slice into the protected region. It is valid only
// until Close. Panics after Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.data
}

// Reveal returns a heap copy of the secret for APIs that need a
// string, such as HTTP header values. Panics after Close.
func (b *Buffer) Reveal() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return string(b.data)
}

// Locked reports whether the region is locked against swap.
func (b *Buffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// String implements fmt.Stringer without exposing the secret.
func (b *Buffer) String() string { return redacted }

// LogValue implements slog.LogValuer without exposing the secret.
func (b *Buffer) LogValue() slog.Value { return slog.StringValue(redacted) }

// Close zeroes and releases the region. Close is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	zero(b.data)
	var errs []error
	if b.locked {
		if err := unix.Munlock(b.data); err != nil {
			errs = append(errs, fmt.Errorf("secret: munlock: %w", err))
		}
	}
	if err := unix.Munmap(b.data); err != nil {
		errs = append(errs, fmt.Errorf("secret: munmap: %w", err))
	}
	b.data = nil
	return errors.Join(errs...)
}

func zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}
