// Package resolve is a subcommand of the root command. It prints the emulator CPU
// arguments of a VM configuration.
package resolve

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"qmcpu/internal/common"
	"qmcpu/internal/cpuconfig"
	"qmcpu/internal/table"

	"github.com/spf13/cobra"
)

const cmdName = "resolve"

var examples = []string{
	fmt.Sprintf("  Resolve with the VM's machine type:        $ %s %s --vm vm.yaml", common.AppName, cmdName),
	fmt.Sprintf("  Resolve for a specific machine version:    $ %s %s --vm vm.yaml --machine-version 8.1+pve1", common.AppName, cmdName),
	fmt.Sprintf("  Include the hotplug device of vCPU 5:      $ %s %s --vm vm.yaml --hotplug-id 5", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Print the emulator CPU arguments of a VM",
	Long:          "Reads the cpu, kvm, ostype, bios, cores and machine properties of a YAML VM configuration and prints the resulting emulator arguments.",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagVM             string
	flagArch           string
	flagMachineVersion string
	flagBuild          string
	flagKVMOff         bool
	flagGPUPassthrough bool
	flagHotplugID      int
	flagFormat         string
)

const (
	flagVMName             = "vm"
	flagArchName           = "arch"
	flagMachineVersionName = "machine-version"
	flagBuildName          = "build"
	flagKVMOffName         = "kvm-off"
	flagGPUPassthroughName = "gpu-passthrough"
	flagHotplugIDName      = "hotplug-id"
	flagFormatName         = "format"
)

func init() {
	Cmd.Flags().StringVar(&flagVM, flagVMName, "", "")
	Cmd.Flags().StringVar(&flagArch, flagArchName, "", "")
	Cmd.Flags().StringVar(&flagMachineVersion, flagMachineVersionName, "", "")
	Cmd.Flags().StringVar(&flagBuild, flagBuildName, "", "")
	Cmd.Flags().BoolVar(&flagKVMOff, flagKVMOffName, false, "")
	Cmd.Flags().BoolVar(&flagGPUPassthrough, flagGPUPassthroughName, false, "")
	Cmd.Flags().IntVar(&flagHotplugID, flagHotplugIDName, 0, "")
	Cmd.Flags().StringVar(&flagFormat, flagFormatName, table.FormatTxt, "")
	Cmd.SetUsageFunc(common.UsageFunc(getFlagGroups))
}

func getFlagGroups() []common.FlagGroup {
	return []common.FlagGroup{
		{
			GroupName: "Input",
			Flags: []common.Flag{
				{Name: flagVMName, Help: "VM configuration file (YAML), required"},
			},
		},
		{
			GroupName: "Host Options",
			Flags: []common.Flag{
				{Name: flagArchName, Help: "guest architecture: x86_64, aarch64 (default: from config)"},
				{Name: flagMachineVersionName, Help: "machine version, e.g., 8.1 or 8.1+pve1 (default: from the VM machine type)"},
				{Name: flagBuildName, Help: "emulator build version, e.g., 9.2.0 (default: from config)"},
				{Name: flagKVMOffName, Help: "hide the hypervisor from the guest"},
				{Name: flagGPUPassthroughName, Help: "the VM has a GPU passed through"},
			},
		},
		{
			GroupName: "Output Options",
			Flags: []common.Flag{
				{Name: flagHotplugIDName, Help: "also print the hotplug device of this vCPU (1-based)"},
				{Name: flagFormatName, Help: fmt.Sprintf("choose output format from: %s, %s", table.FormatTxt, table.FormatJson)},
			},
		},
	}
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagVM == "" {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s is required", flagVMName))
	}
	if flagHotplugID < 0 {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s must be 1 or greater", flagHotplugIDName))
	}
	if flagFormat != table.FormatTxt && flagFormat != table.FormatJson {
		return common.FlagValidationError(cmd, fmt.Sprintf("format options are: %s, %s", table.FormatTxt, table.FormatJson))
	}
	return nil
}

// Result is the output of a resolution
type Result struct {
	Args   []string `json:"args"`
	Device string   `json:"device,omitempty"`
}

// String formats the result as emulator command line arguments
func (r Result) String() string {
	var sb strings.Builder
	for i := 0; i+1 < len(r.Args); i += 2 {
		fmt.Fprintf(&sb, "%s %s\n", r.Args[i], r.Args[i+1])
	}
	if r.Device != "" {
		fmt.Fprintf(&sb, "-device %s\n", r.Device)
	}
	return sb.String()
}

func runCmd(cmd *cobra.Command, args []string) error {
	appContext := common.GetAppContext(cmd)
	conf, err := common.LoadVMConfig(flagVM)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	params := common.ResolveParams{
		Arch:           appContext.Config.Arch,
		MachineVersion: flagMachineVersion,
		EmulatorBuild:  appContext.Config.EmulatorBuild,
		KVMOff:         flagKVMOff,
		GPUPassthrough: flagGPUPassthrough,
	}
	if flagArch != "" {
		params.Arch = flagArch
	}
	if flagBuild != "" {
		params.EmulatorBuild = flagBuild
	}
	manager, s, err := common.OpenRegistry(cmd)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	defer s.Close()
	result, machineVersion, err := resolveVM(cmd.Context(), manager, conf, params, flagHotplugID)
	if err != nil {
		slog.Error(err.Error(), slog.String("vm", flagVM))
		return common.ReportError(cmd, err)
	}
	slog.Info("resolved CPU options", slog.String("vm", flagVM), slog.String("machine-version", machineVersion), slog.String("cpu", result.Args[1]))
	if flagFormat == table.FormatJson {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return common.ReportError(cmd, err)
		}
		fmt.Println(string(out))
		return nil
	}
	fmt.Print(result.String())
	return nil
}

// resolveVM checks the VM's CPU setting and resolves its emulator arguments. It also
// returns the machine version the options were resolved for.
func resolveVM(ctx context.Context, models cpuconfig.ModelSource, conf cpuconfig.VMConfig, params common.ResolveParams, hotplugID int) (Result, string, error) {
	var result Result
	if err := common.CheckVMCPU(ctx, models, conf); err != nil {
		return result, "", err
	}
	req, err := common.BuildOptionsRequest(conf, params)
	if err != nil {
		return result, "", err
	}
	resolver := cpuconfig.NewResolver(models)
	result.Args, err = resolver.CPUOptions(ctx, conf, req)
	if err != nil {
		return result, req.MachineVersion, err
	}
	if hotplugID > 0 {
		result.Device, err = resolver.CPUDevice(ctx, conf, hotplugID)
		if err != nil {
			return result, req.MachineVersion, err
		}
	}
	return result, req.MachineVersion, nil
}
