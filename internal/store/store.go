// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package store provides the blob stores that hold the custom CPU model registry.
// Documents are keyed by a relative path, e.g., virtual-guest/cpu-models.conf.
package store

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Store interface (kept minimal, allows swapping implementations).
// Read returns an empty document, and no error, when nothing was written to the path yet.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open creates the store for the named backend rooted at dir
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		s, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		s, err := NewBadgerStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend: %s", backend)
}

// cleanKey rejects absolute and escaping paths
func cleanKey(p string) (string, error) {
	clean := path.Clean(p)
	if p == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid store path: '%s'", p)
	}
	return clean, nil
}
