// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package cpus provides the built-in virtual CPU model definitions and vendor lookup
// utilities for the x86 and ARM architectures.
package cpus

import (
	"fmt"
	"maps"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const IntelVendor = "GenuineIntel"
const AMDVendor = "AuthenticAMD"

// DefaultVendor marks generic models that inherit the vendor of the host
const DefaultVendor = "default"

const X86Architecture = "x86_64"
const ARMArchitecture = "aarch64"

// Generic and default model names
const (
	ModelHost      = "host"
	ModelKVM32     = "kvm32"
	ModelKVM64     = "kvm64"
	ModelQEMU32    = "qemu32"
	ModelQEMU64    = "qemu64"
	ModelMax       = "max"
	ModelCortexA57 = "cortex-a57"
)

// cpuVendorMap maps built-in model name to the vendor reported to the guest
var cpuVendorMap = map[string]string{
	// Intel CPUs
	"486":                       IntelVendor,
	"pentium":                   IntelVendor,
	"pentium2":                  IntelVendor,
	"pentium3":                  IntelVendor,
	"coreduo":                   IntelVendor,
	"core2duo":                  IntelVendor,
	"Conroe":                    IntelVendor,
	"Penryn":                    IntelVendor,
	"Nehalem":                   IntelVendor,
	"Nehalem-IBRS":              IntelVendor,
	"Westmere":                  IntelVendor,
	"Westmere-IBRS":             IntelVendor,
	"SandyBridge":               IntelVendor,
	"SandyBridge-IBRS":          IntelVendor,
	"IvyBridge":                 IntelVendor,
	"IvyBridge-IBRS":            IntelVendor,
	"Haswell":                   IntelVendor,
	"Haswell-IBRS":              IntelVendor,
	"Haswell-noTSX":             IntelVendor,
	"Haswell-noTSX-IBRS":        IntelVendor,
	"Broadwell":                 IntelVendor,
	"Broadwell-IBRS":            IntelVendor,
	"Broadwell-noTSX":           IntelVendor,
	"Broadwell-noTSX-IBRS":      IntelVendor,
	"Skylake-Client":            IntelVendor,
	"Skylake-Client-IBRS":       IntelVendor,
	"Skylake-Client-noTSX-IBRS": IntelVendor,
	"Skylake-Server":            IntelVendor,
	"Skylake-Server-IBRS":       IntelVendor,
	"Skylake-Server-noTSX-IBRS": IntelVendor,
	"Cascadelake-Server":        IntelVendor,
	"Cascadelake-Server-noTSX":  IntelVendor,
	"KnightsMill":               IntelVendor,
	"Icelake-Client":            IntelVendor,
	"Icelake-Client-noTSX":      IntelVendor,
	"Icelake-Server":            IntelVendor,
	"Icelake-Server-noTSX":      IntelVendor,
	"Cooperlake":                IntelVendor,
	"SapphireRapids":            IntelVendor,
	// AMD CPUs
	"athlon":     AMDVendor,
	"phenom":     AMDVendor,
	"Opteron_G1": AMDVendor,
	"Opteron_G2": AMDVendor,
	"Opteron_G3": AMDVendor,
	"Opteron_G4": AMDVendor,
	"Opteron_G5": AMDVendor,
	"EPYC":       AMDVendor,
	"EPYC-IBPB":  AMDVendor,
	"EPYC-Rome":  AMDVendor,
	"EPYC-Milan": AMDVendor,
	"EPYC-Genoa": AMDVendor,
	// generic types, use vendor from host node
	ModelHost:   DefaultVendor,
	ModelKVM32:  DefaultVendor,
	ModelKVM64:  DefaultVendor,
	ModelQEMU32: DefaultVendor,
	ModelQEMU64: DefaultVendor,
	ModelMax:    DefaultVendor,
}

// GetVendor returns the vendor of a built-in model. The second return value is false
// when the name is not a built-in model.
func GetVendor(model string) (vendor string, ok bool) {
	vendor, ok = cpuVendorMap[model]
	return
}

// IsBuiltinModel checks if the name is a key of the built-in vendor table
func IsBuiltinModel(model string) bool {
	_, ok := cpuVendorMap[model]
	return ok
}

// BuiltinModels returns all built-in model names, collated case-insensitively
func BuiltinModels() []string {
	models := slices.Collect(maps.Keys(cpuVendorMap))
	c := collate.New(language.Und, collate.IgnoreCase)
	c.SortStrings(models)
	return models
}

// DefaultModel returns the model used when a VM does not configure one
func DefaultModel(arch string, kvm bool) string {
	if arch == ARMArchitecture {
		return ModelCortexA57
	}
	if kvm {
		return ModelKVM64
	}
	return ModelQEMU64
}

// ValidateArchitecture returns an error for architectures that have no CPU model support
func ValidateArchitecture(arch string) error {
	switch arch {
	case X86Architecture, ARMArchitecture:
		return nil
	}
	return fmt.Errorf("unsupported architecture: %s", arch)
}
