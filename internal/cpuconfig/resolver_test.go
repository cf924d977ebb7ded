package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"strings"
	"testing"

	"qmcpu/internal/cpus"
	"qmcpu/internal/machine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resolverRegistryDoc = `cpu-model: avx
	reported-model Haswell
	hidden 1
	hv-vendor-id modelid
	flags +avx;+avx2

cpu-model: plain
	flags -pcid
`

const allHypervFlags = "hv_spinlocks=0x1fff,hv_vapic,hv_time,hv_reset,hv_vpindex,hv_runtime,hv_relaxed,hv_synic,hv_stimer,hv_ipi"

func x86Request(machineVersion string) OptionsRequest {
	return OptionsRequest{Arch: cpus.X86Architecture, KVM: true, MachineVersion: machineVersion}
}

func TestCPUOptions(t *testing.T) {
	resolver := NewResolver(newTestManager(t, resolverRegistryDoc))
	windows10 := x86Request("8.1")
	windows10.WindowsVersion = 10
	kvmOff := x86Request("8.1")
	kvmOff.KVMOff = true
	tcg := x86Request("8.1")
	tcg.KVM = false
	arm := x86Request("8.1")
	arm.Arch = cpus.ARMArchitecture

	tests := []struct {
		name string
		conf VMConfig
		req  OptionsRequest
		want string
	}{
		{
			name: "default model on old machine",
			req:  x86Request("2.2"),
			want: "kvm64,+lahf_lm,+sep,enforce",
		},
		{
			name: "default model",
			req:  x86Request("8.1"),
			want: "kvm64,+lahf_lm,+sep,+kvm_pv_unhalt,+kvm_pv_eoi,enforce",
		},
		{
			name: "no hardware virtualization",
			req:  tcg,
			want: "qemu64",
		},
		{
			name: "host on windows",
			conf: VMConfig{CPU: "host", OSType: "win10"},
			req:  windows10,
			want: "host,+kvm_pv_unhalt,+kvm_pv_eoi," + allHypervFlags,
		},
		{
			name: "built-in with vendor",
			conf: VMConfig{CPU: "Haswell,flags=+aes"},
			req:  x86Request("8.1"),
			want: "Haswell,+aes,+kvm_pv_unhalt,+kvm_pv_eoi,enforce,vendor=GenuineIntel",
		},
		{
			name: "opteron on solaris",
			conf: VMConfig{CPU: "Opteron_G5", OSType: "solaris"},
			req:  x86Request("8.1"),
			want: "Opteron_G5,-x2apic,-rdtscp,+kvm_pv_unhalt,+kvm_pv_eoi,enforce,vendor=AuthenticAMD",
		},
		{
			name: "hidden from request",
			conf: VMConfig{CPU: "kvm32"},
			req:  kvmOff,
			want: "kvm32,+sep,+kvm_pv_unhalt,+kvm_pv_eoi,enforce,kvm=off",
		},
		{
			name: "hidden from vm config",
			conf: VMConfig{CPU: "max,hidden=1"},
			req:  x86Request("8.1"),
			want: "max,+kvm_pv_unhalt,+kvm_pv_eoi,enforce,kvm=off",
		},
		{
			name: "custom model",
			conf: VMConfig{CPU: "custom-avx,flags=+aes"},
			req:  x86Request("8.1"),
			want: "Haswell,+avx,+avx2,+aes,+kvm_pv_unhalt,+kvm_pv_eoi,enforce,kvm=off,vendor=GenuineIntel",
		},
		{
			name: "custom model on windows uses its vendor id",
			conf: VMConfig{CPU: "custom-avx"},
			req:  windows10,
			want: "Haswell,+avx,+avx2,+kvm_pv_unhalt,+kvm_pv_eoi,hv_vendor_id=modelid," + allHypervFlags + ",enforce,kvm=off,vendor=GenuineIntel",
		},
		{
			name: "vm vendor id overrides custom model",
			conf: VMConfig{CPU: "custom-avx,hv-vendor-id=vmid"},
			req:  windows10,
			want: "Haswell,+avx,+avx2,+kvm_pv_unhalt,+kvm_pv_eoi,hv_vendor_id=vmid," + allHypervFlags + ",enforce,kvm=off,vendor=GenuineIntel",
		},
		{
			name: "custom model without reported model",
			conf: VMConfig{CPU: "custom-plain"},
			req:  x86Request("8.1"),
			want: "kvm64,-pcid,+lahf_lm,+sep,+kvm_pv_unhalt,+kvm_pv_eoi,enforce",
		},
		{
			name: "aarch64 default",
			req:  arm,
			want: "cortex-a57",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.CPUOptions(context.Background(), tt.conf, tt.req)
			require.NoError(t, err)
			assert.Equal(t, []string{"-cpu", tt.want}, got)
		})
	}
}

func TestCPUOptionsGPUPassthrough(t *testing.T) {
	resolver := NewResolver(nil)
	req := x86Request("8.1")
	req.WindowsVersion = 11
	req.GPUPassthrough = true
	got, err := resolver.CPUOptions(context.Background(), VMConfig{CPU: "host", BIOS: "ovmf"}, req)
	require.NoError(t, err)
	assert.True(t, strings.Contains(got[1], ",hv_vendor_id=proxmox,hv_spinlocks=0x1fff,"), got[1])
}

func TestCPUOptionsErrors(t *testing.T) {
	resolver := NewResolver(newTestManager(t, resolverRegistryDoc))
	ctx := context.Background()

	_, err := resolver.CPUOptions(ctx, VMConfig{CPU: "kvm64,bogus=1"}, x86Request("8.1"))
	assert.ErrorIs(t, err, ErrCannotParseCPU)
	assert.ErrorIs(t, err, ErrParse)

	_, err = resolver.CPUOptions(ctx, VMConfig{CPU: "custom-missing"}, x86Request("8.1"))
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = resolver.CPUOptions(ctx, VMConfig{}, x86Request(""))
	assert.ErrorIs(t, err, machine.ErrInvalidVersionString)

	_, err = resolver.CPUOptions(ctx, VMConfig{CPU: "NotACPU"}, x86Request("8.1"))
	assert.ErrorIs(t, err, ErrInternal)

	// unknown models pass through on aarch64
	arm := x86Request("8.1")
	arm.Arch = cpus.ARMArchitecture
	got, err := resolver.CPUOptions(ctx, VMConfig{CPU: "cortex-a72"}, arm)
	require.NoError(t, err)
	assert.Equal(t, []string{"-cpu", "cortex-a72"}, got)

	_, err = NewResolver(nil).CPUOptions(ctx, VMConfig{CPU: "custom-avx"}, x86Request("8.1"))
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestCPUDevice(t *testing.T) {
	resolver := NewResolver(newTestManager(t, resolverRegistryDoc))
	noKVM := false
	tests := []struct {
		name string
		conf VMConfig
		id   int
		want string
	}{
		{
			name: "first vcpu",
			id:   1,
			want: "kvm64-x86_64-cpu,id=cpu1,socket-id=0,core-id=0,thread-id=0",
		},
		{
			name: "second socket",
			conf: VMConfig{Cores: 4},
			id:   5,
			want: "kvm64-x86_64-cpu,id=cpu5,socket-id=1,core-id=0,thread-id=0",
		},
		{
			name: "single core sockets",
			id:   3,
			want: "kvm64-x86_64-cpu,id=cpu3,socket-id=2,core-id=0,thread-id=0",
		},
		{
			name: "configured model",
			conf: VMConfig{CPU: "EPYC-Rome,flags=+aes", Cores: 2},
			id:   4,
			want: "EPYC-Rome-x86_64-cpu,id=cpu4,socket-id=1,core-id=1,thread-id=0",
		},
		{
			name: "custom model",
			conf: VMConfig{CPU: "custom-avx", Cores: 8},
			id:   2,
			want: "Haswell-x86_64-cpu,id=cpu2,socket-id=0,core-id=1,thread-id=0",
		},
		{
			name: "kvm disabled",
			conf: VMConfig{KVM: &noKVM},
			id:   1,
			want: "qemu64-x86_64-cpu,id=cpu1,socket-id=0,core-id=0,thread-id=0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.CPUDevice(context.Background(), tt.conf, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := resolver.CPUDevice(context.Background(), VMConfig{}, 0)
	assert.Error(t, err)
}
