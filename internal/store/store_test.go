// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "virtual-guest/cpu-models.conf"

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	badgerStore, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	stores := map[string]Store{
		BackendFile:   fileStore,
		BackendBadger: badgerStore,
		BackendMemory: NewMemStore(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			data, err := s.Read(ctx, testPath)
			require.NoError(t, err)
			assert.Empty(t, data)

			require.NoError(t, s.Write(ctx, testPath, []byte("cpu-model: foo\n\tflags +aes\n")))
			data, err = s.Read(ctx, testPath)
			require.NoError(t, err)
			assert.Equal(t, "cpu-model: foo\n\tflags +aes\n", string(data))

			require.NoError(t, s.Write(ctx, testPath, []byte("")))
			data, err = s.Read(ctx, testPath)
			require.NoError(t, err)
			assert.Empty(t, data)
		})
	}
}

func TestStoreRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range []string{"", "/etc/passwd", "../outside", "a/../../b"} {
				_, err := s.Read(ctx, p)
				assert.Error(t, err, p)
				assert.Error(t, s.Write(ctx, p, []byte("x")), p)
			}
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), testPath, []byte("data")))
	content, err := os.ReadFile(filepath.Join(root, "virtual-guest", "cpu-models.conf"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(root, "virtual-guest"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	data := []byte("abc")
	require.NoError(t, s.Write(ctx, testPath, data))
	data[0] = 'x'
	got, err := s.Read(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestOpen(t *testing.T) {
	s, err := Open(BackendMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemStore{}, s)
	s, err = Open("", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	_, err = Open("etcd", t.TempDir())
	assert.Error(t, err)
}
