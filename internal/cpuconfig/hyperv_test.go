package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHypervFlags(t *testing.T) {
	tests := []struct {
		name       string
		winVersion int
		machine    string
		bios       string
		gpu        bool
		vendorID   string
		want       []string
	}{
		{
			name:       "not windows",
			winVersion: 0,
			machine:    "8.1",
			want:       nil,
		},
		{
			name:       "windows xp",
			winVersion: 5,
			machine:    "8.1",
			want:       nil,
		},
		{
			name:       "windows 7 on uefi",
			winVersion: 7,
			machine:    "8.1",
			bios:       "ovmf",
			want:       nil,
		},
		{
			name:       "vista on old machine",
			winVersion: 6,
			machine:    "2.2",
			want:       []string{"hv_spinlocks=0xffff"},
		},
		{
			name:       "windows 7 on 2.4",
			winVersion: 7,
			machine:    "2.4",
			want:       []string{"hv_spinlocks=0x1fff", "hv_vapic", "hv_time", "hv_relaxed"},
		},
		{
			name:       "windows 10 on 5.1",
			winVersion: 10,
			machine:    "5.1",
			want: []string{
				"hv_spinlocks=0x1fff", "hv_vapic", "hv_time",
				"hv_reset", "hv_vpindex", "hv_runtime",
				"hv_relaxed", "hv_synic", "hv_stimer", "hv_ipi",
			},
		},
		{
			name:       "gpu passthrough uses the default vendor id",
			winVersion: 10,
			machine:    "2.12",
			bios:       "ovmf",
			gpu:        true,
			want: []string{
				"hv_vendor_id=proxmox",
				"hv_spinlocks=0x1fff", "hv_vapic", "hv_time",
				"hv_reset", "hv_vpindex", "hv_runtime",
				"hv_relaxed", "hv_synic", "hv_stimer",
			},
		},
		{
			name:       "configured vendor id",
			winVersion: 6,
			machine:    "2.6",
			vendorID:   "whatever",
			want: []string{
				"hv_vendor_id=whatever",
				"hv_spinlocks=0x1fff", "hv_vapic", "hv_time",
				"hv_reset", "hv_vpindex", "hv_runtime",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hypervFlags(tt.winVersion, tt.machine, tt.bios, tt.gpu, tt.vendorID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHypervFlagsInvalidMachine(t *testing.T) {
	_, err := hypervFlags(10, "latest", "", false, "")
	assert.Error(t, err)
}
