// Package machine is a subcommand of the root command. It extracts machine versions and
// checks them against emulator builds.
package machine

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"strings"

	"qmcpu/internal/common"
	"qmcpu/internal/machine"

	"github.com/spf13/cobra"
)

const cmdName = "machine"

var examples = []string{
	fmt.Sprintf("  Version of a machine type:          $ %s %s extract pc-q35-8.1+pve1", common.AppName, cmdName),
	fmt.Sprintf("  Version of an unversioned type:     $ %s %s extract q35 --build 9.2.0", common.AppName, cmdName),
	fmt.Sprintf("  Check a version against a build:    $ %s %s can-run 9.2+pve1 9.2.0", common.AppName, cmdName),
	fmt.Sprintf("  Newest version of a build:          $ %s %s latest 9.2.0", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Inspect machine versions",
	Example:       strings.Join(examples, "\n"),
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagBuild   string
	flagDetails bool
)

const (
	flagBuildName   = "build"
	flagDetailsName = "details"
)

var extractCmd = &cobra.Command{
	Use:           "extract <machine-type>",
	Short:         "Print the version of a machine type",
	Args:          cobra.ExactArgs(1),
	RunE:          runExtract,
	SilenceErrors: true,
}

var canRunCmd = &cobra.Command{
	Use:           "can-run <machine-version> <emulator-build>",
	Short:         "Check that a machine version can run on an emulator build",
	Args:          cobra.ExactArgs(2),
	RunE:          runCanRun,
	SilenceErrors: true,
}

var latestCmd = &cobra.Command{
	Use:           "latest <emulator-build>",
	Short:         "Print the newest machine version of an emulator build",
	Args:          cobra.ExactArgs(1),
	RunE:          runLatest,
	SilenceErrors: true,
}

func init() {
	extractCmd.Flags().StringVar(&flagBuild, flagBuildName, "", "")
	extractCmd.Flags().BoolVar(&flagDetails, flagDetailsName, false, "")
	extractCmd.SetUsageFunc(common.UsageFunc(func() []common.FlagGroup {
		return []common.FlagGroup{{
			GroupName: "Options",
			Flags: []common.Flag{
				{Name: flagBuildName, Help: "emulator build version used for unversioned machine types (default: from config)"},
				{Name: flagDetailsName, Help: "also print the chipset and whether PXE option ROMs are selected"},
			},
		}}
	}))
	noFlags := common.UsageFunc(func() []common.FlagGroup { return nil })
	canRunCmd.SetUsageFunc(noFlags)
	latestCmd.SetUsageFunc(noFlags)
	Cmd.AddCommand(extractCmd, canRunCmd, latestCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	build := flagBuild
	if build == "" {
		build = common.GetAppContext(cmd).Config.EmulatorBuild
	}
	out, err := extractVersion(args[0], build, flagDetails)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runCanRun(cmd *cobra.Command, args []string) error {
	out, err := checkCanRun(args[0], args[1])
	if err != nil {
		return common.ReportError(cmd, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runLatest(cmd *cobra.Command, args []string) error {
	version, err := machine.LatestMachineVersion(args[0])
	if err != nil {
		return common.ReportError(cmd, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), version)
	return nil
}

// extractVersion formats the version of a machine type, with details the chipset and
// PXE selection follow on separate lines
func extractVersion(machineType, build string, details bool) (string, error) {
	base, pxe := machine.StripPXE(machineType)
	version, ok := machine.ExtractVersion(base, build)
	if !ok {
		return "", fmt.Errorf("'%s' is not a versioned machine type and no emulator build is known", machineType)
	}
	chipset := "i440fx"
	if machine.IsQ35(base) {
		chipset = "q35"
	} else if strings.HasPrefix(base, "virt") {
		chipset = "virt"
	}
	slog.Debug("extracted machine version", slog.String("machine", machineType), slog.String("version", version), slog.Bool("pxe", pxe), slog.String("chipset", chipset))
	if !details {
		return version + "\n", nil
	}
	return fmt.Sprintf("version: %s\nchipset: %s\npxe: %t\n", version, chipset, pxe), nil
}

func checkCanRun(version, build string) (string, error) {
	if _, err := machine.ParseVersion(version); err != nil {
		return "", err
	}
	if !machine.CanRun(version, build) {
		return "", fmt.Errorf("machine version %s cannot run on emulator build %s", version, build)
	}
	return fmt.Sprintf("machine version %s can run on emulator build %s\n", version, build), nil
}
