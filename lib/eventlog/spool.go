// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rocketbot/rocket/lib/codec"
)

// spoolVersion is bumped when the record encoding changes
// incompatibly.
const spoolVersion = 1

// MaxSpoolSize bounds the decompressed spool.
const MaxSpoolSize = 64 << 20

type spoolFile struct {
	Version int      `cbor:"version"`
	Records []Record `cbor:"records"`
}

// WriteSpool saves records that could not be delivered before
// shutdown. The file is replaced atomically. An empty slice removes
// any existing spool.
func WriteSpool(path string, records []Record) error {
	if len(records) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("eventlog: removing spool: %w", err)
		}
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("eventlog: creating spool directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".spool-*")
	if err != nil {
		return fmt.Errorf("eventlog: creating temp spool: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := codec.WriteCompressed(tmpFile, spoolFile{Version: spoolVersion, Records: records}); err != nil {
		tmpFile.Close()
		return fmt.Errorf("eventlog: writing spool: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("eventlog: syncing spool: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("eventlog: closing temp spool: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("eventlog: renaming spool to %s: %w", path, err)
	}
	success = true
	return nil
}

// TakeSpool reads and removes the spool at path. A missing file yields
// no records and no error. An unreadable spool is left in place.
func TakeSpool(path string) ([]Record, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: opening spool: %w", err)
	}
	var spool spoolFile
	err = codec.ReadCompressed(file, &spool, MaxSpoolSize)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading spool %s: %w", path, err)
	}
	if spool.Version != spoolVersion {
		return nil, fmt.Errorf("eventlog: spool %s has version %d, want %d", path, spool.Version, spoolVersion)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("eventlog: removing spool: %w", err)
	}
	return spool.Records, nil
}
