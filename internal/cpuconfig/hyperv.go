package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"

	"qmcpu/internal/machine"

	"github.com/casbin/govaluate"
)

// DefaultHVVendorID is used when GPU passthrough needs a vendor ID and none is set
const DefaultHVVendorID = "proxmox"

// enlightenment is a Hyper-V flag and the condition for adding it. Guards see the
// parameters "machine" (machine version string) and "windows" (Windows version).
type enlightenment struct {
	Flag      string
	Guard     string
	evaluable *govaluate.EvaluableExpression
}

// hypervEnlightenments lists the flags in the order they are added
var hypervEnlightenments = mustCompileEnlightenments([]enlightenment{
	{Flag: "hv_spinlocks=0x1fff", Guard: "atLeast(machine, 2, 3)"},
	{Flag: "hv_vapic", Guard: "atLeast(machine, 2, 3)"},
	{Flag: "hv_time", Guard: "atLeast(machine, 2, 3)"},
	{Flag: "hv_spinlocks=0xffff", Guard: "atLeast(machine, 2, 3) == false"},
	{Flag: "hv_reset", Guard: "atLeast(machine, 2, 6)"},
	{Flag: "hv_vpindex", Guard: "atLeast(machine, 2, 6)"},
	{Flag: "hv_runtime", Guard: "atLeast(machine, 2, 6)"},
	{Flag: "hv_relaxed", Guard: "windows >= 7"},
	{Flag: "hv_synic", Guard: "windows >= 7 && atLeast(machine, 2, 12)"},
	{Flag: "hv_stimer", Guard: "windows >= 7 && atLeast(machine, 2, 12)"},
	{Flag: "hv_ipi", Guard: "windows >= 7 && atLeast(machine, 3, 1)"},
})

func getEvaluatorFunctions() map[string]govaluate.ExpressionFunction {
	functions := make(map[string]govaluate.ExpressionFunction)
	functions["atLeast"] = func(args ...interface{}) (interface{}, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("atLeast requires 3 arguments, got %d", len(args))
		}
		version, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("atLeast: machine version must be a string")
		}
		major, ok := args[1].(float64)
		if !ok {
			return nil, fmt.Errorf("atLeast: major must be a number")
		}
		minor, ok := args[2].(float64)
		if !ok {
			return nil, fmt.Errorf("atLeast: minor must be a number")
		}
		result, err := machine.IsAtLeast(version, int(major), int(minor), 0)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return functions
}

func mustCompileEnlightenments(table []enlightenment) []enlightenment {
	functions := getEvaluatorFunctions()
	for i := range table {
		evaluable, err := govaluate.NewEvaluableExpressionWithFunctions(table[i].Guard, functions)
		if err != nil {
			panic(fmt.Sprintf("invalid guard for %s: %v", table[i].Flag, err))
		}
		table[i].evaluable = evaluable
	}
	return table
}

// hypervFlags returns the enlightenments for a Windows guest, nothing for other guests
// and for UEFI guests older than Windows 8
func hypervFlags(winVersion int, machineVersion, bios string, gpuPassthrough bool, hvVendorID string) ([]string, error) {
	if winVersion < 6 {
		return nil, nil
	}
	if bios == "ovmf" && winVersion < 8 {
		return nil, nil
	}
	var flags []string
	if gpuPassthrough || hvVendorID != "" {
		if hvVendorID == "" {
			hvVendorID = DefaultHVVendorID
		}
		flags = append(flags, "hv_vendor_id="+hvVendorID)
	}
	parameters := map[string]interface{}{
		"machine": machineVersion,
		"windows": float64(winVersion),
	}
	for _, e := range hypervEnlightenments {
		result, err := e.evaluable.Evaluate(parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate guard of %s: %w", e.Flag, err)
		}
		if add, ok := result.(bool); ok && add {
			flags = append(flags, e.Flag)
		}
	}
	return flags, nil
}
