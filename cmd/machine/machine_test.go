package machine

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"strings"
	"testing"

	"qmcpu/internal/machine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVersionOutput(t *testing.T) {
	tests := []struct {
		name        string
		machineType string
		build       string
		details     bool
		want        string
		wantErr     bool
	}{
		{name: "versioned", machineType: "pc-q35-8.1+pve1", want: "8.1+pve1\n"},
		{name: "unversioned with build", machineType: "q35", build: "9.2.0", want: "9.2+pve1\n"},
		{
			name:        "details q35 pxe",
			machineType: "pc-q35-4.1+pve2.pxe",
			details:     true,
			want:        "version: 4.1+pve2\nchipset: q35\npxe: true\n",
		},
		{
			name:        "details i440fx",
			machineType: "pc",
			build:       "8.1.5",
			details:     true,
			want:        "version: 8.1+pve0\nchipset: i440fx\npxe: false\n",
		},
		{name: "details virt", machineType: "virt-6.2", details: true, want: "version: 6.2\nchipset: virt\npxe: false\n"},
		{name: "unversioned without build", machineType: "q35", wantErr: true},
		{name: "trailing garbage", machineType: "pc-q35-4.1garbage", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := extractVersion(tt.machineType, tt.build, tt.details)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCheckCanRun(t *testing.T) {
	out, err := checkCanRun("4.1+pve2", "4.1.1")
	require.NoError(t, err)
	assert.Equal(t, "machine version 4.1+pve2 can run on emulator build 4.1.1\n", out)

	_, err = checkCanRun("4.1+pve3", "4.1.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot run")

	_, err = checkCanRun("4.1junk", "4.1.1")
	assert.ErrorIs(t, err, machine.ErrInvalidVersionString)
}

func TestLatestCommand(t *testing.T) {
	out := &strings.Builder{}
	latestCmd.SetOut(out)
	t.Cleanup(func() { latestCmd.SetOut(nil) })
	require.NoError(t, runLatest(latestCmd, []string{"9.2.0"}))
	assert.Equal(t, "9.2+pve1\n", out.String())
}
