package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"qmcpu/internal/cpus"
	"qmcpu/internal/machine"

	"github.com/pkg/errors"
)

// VMConfig holds the VM configuration properties that influence the CPU options
type VMConfig struct {
	CPU     string `yaml:"cpu" json:"cpu,omitempty"`
	KVM     *bool  `yaml:"kvm" json:"kvm,omitempty"`
	OSType  string `yaml:"ostype" json:"ostype,omitempty"`
	BIOS    string `yaml:"bios" json:"bios,omitempty"`
	Cores   int    `yaml:"cores" json:"cores,omitempty"`
	Machine string `yaml:"machine" json:"machine,omitempty"`
}

// KVMEnabled reports the kvm setting, hardware virtualization is on unless disabled
func (c VMConfig) KVMEnabled() bool {
	return c.KVM == nil || *c.KVM
}

// OptionsRequest carries the host and runtime inputs of a CPU option resolution
type OptionsRequest struct {
	Arch           string
	KVM            bool
	KVMOff         bool // hide the hypervisor signature from the guest
	MachineVersion string
	WindowsVersion int
	GPUPassthrough bool
}

// Resolver builds emulator CPU arguments. It holds no state besides the model source
// and is safe for concurrent use when the model source is.
type Resolver struct {
	models ModelSource
}

func NewResolver(models ModelSource) *Resolver {
	return &Resolver{models: models}
}

// cpuFlags collects flags in the order they are pushed, the emulator applies them
// in that order
type cpuFlags []string

func (f *cpuFlags) push(flags ...string) {
	*f = append(*f, flags...)
}

// CPUOptions returns the emulator arguments, e.g., ["-cpu", "kvm64,+lahf_lm,+sep,enforce"]
func (r *Resolver) CPUOptions(ctx context.Context, conf VMConfig, req OptionsRequest) ([]string, error) {
	var flags cpuFlags
	kvmOff := req.KVMOff
	var hvVendorID string

	cputype := cpus.DefaultModel(req.Arch, req.KVM)

	if conf.CPU != "" {
		spec, err := ParseCPUConfBasic(conf.CPU, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCannotParseCPU, conf.CPU, err)
		}
		cputype = spec.CPUType
		if IsCustomModel(cputype) {
			custom, err := r.lookupModel(ctx, cputype)
			if err != nil {
				return nil, err
			}
			cputype = reportedModel(custom)
			if custom.Hidden {
				kvmOff = true
			}
			hvVendorID = custom.HVVendorID
			flags.push(custom.Flags...)
			slog.Debug("resolved custom CPU model", slog.String("model", custom.CPUType), slog.String("reported-model", cputype))
		}
		// VM-specific settings override the custom model
		if spec.Hidden {
			kvmOff = true
		}
		if spec.HVVendorID != "" {
			hvVendorID = spec.HVVendorID
		}
		flags.push(spec.Flags...)
	}

	if cputype == cpus.ModelKVM64 && req.Arch == cpus.X86Architecture {
		flags.push("+lahf_lm")
	}
	if conf.OSType == "solaris" {
		flags.push("-x2apic")
	}
	if cputype == cpus.ModelKVM64 || cputype == cpus.ModelKVM32 {
		flags.push("+sep")
	}
	if strings.HasPrefix(cputype, "Opteron") {
		flags.push("-rdtscp")
	}

	atLeast23, err := machine.IsAtLeast(req.MachineVersion, 2, 3, 0)
	if err != nil {
		return nil, err
	}
	if atLeast23 && req.Arch == cpus.X86Architecture && req.KVM {
		flags.push("+kvm_pv_unhalt", "+kvm_pv_eoi")
	}

	if req.KVM {
		hvFlags, err := hypervFlags(req.WindowsVersion, req.MachineVersion, conf.BIOS, req.GPUPassthrough, hvVendorID)
		if err != nil {
			return nil, err
		}
		flags.push(hvFlags...)
	}

	if cputype != cpus.ModelHost && req.KVM && req.Arch == cpus.X86Architecture {
		flags.push("enforce")
	}
	if kvmOff {
		flags.push("kvm=off")
	}

	// for custom models cputype is the reported model, so the built-in table applies
	if vendor, ok := cpus.GetVendor(cputype); ok {
		if vendor != cpus.DefaultVendor {
			flags.push("vendor=" + vendor)
		}
	} else if req.Arch != cpus.ARMArchitecture {
		return nil, errors.Wrapf(ErrInternal, "no vendor for CPU model '%s'", cputype)
	}

	cpuString := cputype
	if len(flags) > 0 {
		cpuString += "," + strings.Join(flags, ",")
	}
	return []string{"-cpu", cpuString}, nil
}

// CPUDevice returns the device string used to hotplug vCPU id (1-based)
func (r *Resolver) CPUDevice(ctx context.Context, conf VMConfig, id int) (string, error) {
	if id < 1 {
		return "", fmt.Errorf("invalid vCPU id %d, ids start at 1", id)
	}
	cputype := cpus.DefaultModel(cpus.X86Architecture, conf.KVMEnabled())
	if conf.CPU != "" {
		spec, err := ParseCPUConfBasic(conf.CPU, false)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrCannotParseCPU, conf.CPU, err)
		}
		cputype = spec.CPUType
		if IsCustomModel(cputype) {
			custom, err := r.lookupModel(ctx, cputype)
			if err != nil {
				return "", err
			}
			cputype = reportedModel(custom)
		}
	}
	cores := conf.Cores
	if cores < 1 {
		cores = 1
	}
	currentCore := (id - 1) % cores
	currentSocket := (id - 1) / cores
	return fmt.Sprintf("%s-x86_64-cpu,id=cpu%d,socket-id=%d,core-id=%d,thread-id=0", cputype, id, currentSocket, currentCore), nil
}

func (r *Resolver) lookupModel(ctx context.Context, cputype string) (*CustomCPUModel, error) {
	if r.models == nil {
		return nil, errors.Wrapf(ErrModelNotFound, "no custom model source to resolve '%s'", cputype)
	}
	return r.models.LookupModel(ctx, cputype, false)
}

func reportedModel(model *CustomCPUModel) string {
	if model.ReportedModel != "" {
		return model.ReportedModel
	}
	return DefaultReportedModel
}
