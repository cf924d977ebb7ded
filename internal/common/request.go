package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"

	"qmcpu/internal/cpuconfig"
	"qmcpu/internal/cpus"
	"qmcpu/internal/machine"
)

// ResolveParams are the host side inputs of a resolution, as given on the command line
// or in an API request
type ResolveParams struct {
	Arch           string `json:"arch,omitempty"`
	MachineVersion string `json:"machine_version,omitempty"`
	EmulatorBuild  string `json:"emulator_build,omitempty"`
	KVMOff         bool   `json:"kvm_off,omitempty"`
	GPUPassthrough bool   `json:"gpu_passthrough,omitempty"`
}

// BuildOptionsRequest derives the resolver request for a VM. Without an explicit machine
// version it is extracted from the VM's machine type, falling back to the emulator build.
// An explicit version with a +pveN revision must be runnable on the emulator build.
func BuildOptionsRequest(conf cpuconfig.VMConfig, params ResolveParams) (cpuconfig.OptionsRequest, error) {
	req := cpuconfig.OptionsRequest{
		Arch:           params.Arch,
		KVM:            conf.KVMEnabled(),
		KVMOff:         params.KVMOff,
		MachineVersion: params.MachineVersion,
		WindowsVersion: machine.WindowsVersion(conf.OSType),
		GPUPassthrough: params.GPUPassthrough,
	}
	if req.Arch == "" {
		req.Arch = cpus.X86Architecture
	}
	if err := cpus.ValidateArchitecture(req.Arch); err != nil {
		return req, err
	}
	if req.MachineVersion == "" {
		machineType, _ := machine.StripPXE(conf.Machine)
		version, ok := machine.ExtractVersion(machineType, params.EmulatorBuild)
		if !ok {
			return req, fmt.Errorf("cannot determine the machine version of '%s', set a versioned machine type or the emulator build", conf.Machine)
		}
		req.MachineVersion = version
		slog.Debug("derived machine version", slog.String("machine", conf.Machine), slog.String("version", version))
	} else if params.EmulatorBuild != "" && !machine.CanRun(req.MachineVersion, params.EmulatorBuild) {
		return req, fmt.Errorf("machine version %s cannot run on emulator build %s", req.MachineVersion, params.EmulatorBuild)
	}
	return req, nil
}

// CheckVMCPU applies the VM-specific restrictions to the cpu setting of a VM: the
// cputype must exist, only the supported flags may be set and reported-model is not
// allowed. An unset cpu selects the default model.
func CheckVMCPU(ctx context.Context, models cpuconfig.ModelSource, conf cpuconfig.VMConfig) error {
	if conf.CPU == "" {
		return nil
	}
	if _, err := cpuconfig.ParseVMCPUConf(ctx, models, conf.CPU, false); err != nil {
		return fmt.Errorf("invalid VM CPU config '%s': %w", conf.CPU, err)
	}
	return nil
}
