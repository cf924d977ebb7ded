package store

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"qmcpu/internal/util"
)

// FileStore keeps each document as a regular file below a root directory
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	absRoot, err := util.AbsPath(root)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store dir: %w", err)
	}
	if err := util.CreateDirectoryIfNotExists(absRoot, 0755); err != nil {
		return nil, err
	}
	return &FileStore{root: absRoot}, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) Read(ctx context.Context, p string) ([]byte, error) {
	key, err := cleanKey(p)
	if err != nil {
		return nil, err
	}
	filePath := filepath.Join(s.root, filepath.FromSlash(key))
	exists, err := util.FileExists(filePath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return os.ReadFile(filePath) // #nosec G304
}

// Write replaces the document atomically by renaming a temp file over it
func (s *FileStore) Write(ctx context.Context, p string, data []byte) error {
	key, err := cleanKey(p)
	if err != nil {
		return err
	}
	filePath := filepath.Join(s.root, filepath.FromSlash(key))
	if err := util.CreateDirectoryIfNotExists(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(filePath), filepath.Base(filePath)+".tmp.")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0640); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	slog.Debug("wrote document", slog.String("path", filePath), slog.Int("bytes", len(data)))
	return nil
}
