// Package model is a subcommand of the root command. It lists, shows, creates, updates
// and deletes custom CPU models.
package model

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"qmcpu/internal/common"
	"qmcpu/internal/cpuconfig"
	"qmcpu/internal/table"
	"qmcpu/internal/util"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const cmdName = "model"

var examples = []string{
	fmt.Sprintf("  List all CPU models:             $ %s %s list", common.AppName, cmdName),
	fmt.Sprintf("  Export custom models to Excel:   $ %s %s list --custom --format xlsx --output models.xlsx", common.AppName, cmdName),
	fmt.Sprintf("  Show a custom model:             $ %s %s show avx", common.AppName, cmdName),
	fmt.Sprintf("  Create a custom model:           $ %s %s create avx --reported-model Haswell --flags '+avx;+avx2'", common.AppName, cmdName),
	fmt.Sprintf("  Hide the hypervisor:             $ %s %s update avx --hidden", common.AppName, cmdName),
	fmt.Sprintf("  Delete a custom model:           $ %s %s delete avx", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Manage custom CPU models",
	Long:          "Custom CPU models are named CPU definitions that VMs reference as 'custom-<name>'.",
	Example:       strings.Join(examples, "\n"),
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagFormat     string
	flagOutput     string
	flagCustomOnly bool

	flagReportedModel string
	flagHidden        bool
	flagHVVendorID    string
	flagFlags         []string
)

const (
	flagFormatName     = "format"
	flagOutputName     = "output"
	flagCustomOnlyName = "custom"

	flagReportedModelName = "reported-model"
	flagHiddenName        = "hidden"
	flagHVVendorIDName    = "hv-vendor-id"
	flagFlagsName         = "flags"
)

var listCmd = &cobra.Command{
	Use:           "list",
	Short:         "List built-in and custom CPU models",
	Args:          cobra.NoArgs,
	PreRunE:       validateListFlags,
	RunE:          runList,
	SilenceErrors: true,
}

var showCmd = &cobra.Command{
	Use:           "show <name>",
	Short:         "Show a custom CPU model",
	Args:          cobra.ExactArgs(1),
	PreRunE:       validateShowFlags,
	RunE:          runShow,
	SilenceErrors: true,
}

var createCmd = &cobra.Command{
	Use:           "create <name>",
	Short:         "Create a custom CPU model",
	Args:          cobra.ExactArgs(1),
	RunE:          runCreate,
	SilenceErrors: true,
}

var updateCmd = &cobra.Command{
	Use:           "update <name>",
	Short:         "Update the properties of a custom CPU model",
	Long:          "Only the given properties change. Pass an empty value to remove a property, e.g., --flags ''.",
	Args:          cobra.ExactArgs(1),
	RunE:          runUpdate,
	SilenceErrors: true,
}

var deleteCmd = &cobra.Command{
	Use:           "delete <name>",
	Short:         "Delete a custom CPU model",
	Long:          "VMs that still reference the model fail to start until their CPU setting is changed.",
	Args:          cobra.ExactArgs(1),
	RunE:          runDelete,
	SilenceErrors: true,
}

func init() {
	listCmd.Flags().StringVar(&flagFormat, flagFormatName, table.FormatTxt, "")
	listCmd.Flags().StringVar(&flagOutput, flagOutputName, "", "")
	listCmd.Flags().BoolVar(&flagCustomOnly, flagCustomOnlyName, false, "")
	listCmd.SetUsageFunc(common.UsageFunc(getListFlagGroups))

	showCmd.Flags().StringVar(&flagFormat, flagFormatName, table.FormatTxt, "")
	showCmd.SetUsageFunc(common.UsageFunc(getShowFlagGroups))

	for _, c := range []*cobra.Command{createCmd, updateCmd} {
		c.Flags().StringVar(&flagReportedModel, flagReportedModelName, "", "")
		c.Flags().BoolVar(&flagHidden, flagHiddenName, false, "")
		c.Flags().StringVar(&flagHVVendorID, flagHVVendorIDName, "", "")
		c.Flags().StringSliceVar(&flagFlags, flagFlagsName, nil, "")
		c.SetUsageFunc(common.UsageFunc(getPropertyFlagGroups))
	}
	deleteCmd.SetUsageFunc(common.UsageFunc(func() []common.FlagGroup { return nil }))

	Cmd.AddCommand(listCmd, showCmd, createCmd, updateCmd, deleteCmd)
}

func getListFlagGroups() []common.FlagGroup {
	return []common.FlagGroup{{
		GroupName: "Options",
		Flags: []common.Flag{
			{Name: flagFormatName, Help: fmt.Sprintf("choose output format from: %s", strings.Join(table.FormatOptions, ", "))},
			{Name: flagOutputName, Help: "write to a file instead of stdout, required for xlsx"},
			{Name: flagCustomOnlyName, Help: "list custom models only"},
		},
	}}
}

func getShowFlagGroups() []common.FlagGroup {
	return []common.FlagGroup{{
		GroupName: "Options",
		Flags: []common.Flag{
			{Name: flagFormatName, Help: fmt.Sprintf("choose output format from: %s, %s", table.FormatTxt, table.FormatJson)},
		},
	}}
}

func getPropertyFlagGroups() []common.FlagGroup {
	return []common.FlagGroup{{
		GroupName: "Model Properties",
		Flags: []common.Flag{
			{Name: flagReportedModelName, Help: "built-in CPU model and vendor reported to the guest (default: kvm64)"},
			{Name: flagHiddenName, Help: "do not identify as a KVM virtual machine"},
			{Name: flagHVVendorIDName, Help: "Hyper-V vendor ID, 1 to 12 alphanumeric characters"},
			{Name: flagFlagsName, Help: "CPU flags, '+FLAG' enables and '-FLAG' disables, separated by ';' or repeated"},
		},
	}}
}

func validateListFlags(cmd *cobra.Command, args []string) error {
	if err := table.ValidateFormat(flagFormat); err != nil {
		return common.FlagValidationError(cmd, err.Error())
	}
	if flagFormat == table.FormatXlsx && flagOutput == "" {
		return common.FlagValidationError(cmd, fmt.Sprintf("--%s is required for the %s format", flagOutputName, table.FormatXlsx))
	}
	return nil
}

func validateShowFlags(cmd *cobra.Command, args []string) error {
	if flagFormat != table.FormatTxt && flagFormat != table.FormatJson {
		return common.FlagValidationError(cmd, fmt.Sprintf("format options are: %s, %s", table.FormatTxt, table.FormatJson))
	}
	return nil
}

// modelsTable lists one model per row
func modelsTable(infos []cpuconfig.CPUModelInfo) table.TableValues {
	tv := table.TableValues{
		HasRows:     true,
		NoDataFound: "No CPU models found.",
		Fields:      []table.Field{{Name: "Name"}, {Name: "Vendor"}, {Name: "Custom"}},
	}
	for _, info := range infos {
		tv.Fields[0].Values = append(tv.Fields[0].Values, info.Name)
		tv.Fields[1].Values = append(tv.Fields[1].Values, info.Vendor)
		tv.Fields[2].Values = append(tv.Fields[2].Values, fmt.Sprintf("%t", info.Custom))
	}
	return tv
}

// modelTable shows the properties of one custom model
func modelTable(model *cpuconfig.CustomCPUModel) table.TableValues {
	reported := model.ReportedModel
	if reported == "" {
		reported = cpuconfig.DefaultReportedModel + " (default)"
	}
	return table.TableValues{
		Name: model.CPUType,
		Fields: []table.Field{
			{Name: "Name", Values: []string{model.Name}},
			{Name: "Reported Model", Values: []string{reported}},
			{Name: "Hidden", Values: []string{fmt.Sprintf("%t", model.Hidden)}},
			{Name: "HV Vendor ID", Values: []string{model.HVVendorID}},
			{Name: "Flags", Values: []string{model.FlagString()}},
			{Name: "Config", Values: []string{model.String()}},
		},
	}
}

// plainModels is used when stdout is not a terminal, one tab separated model per line
func plainModels(infos []cpuconfig.CPUModelInfo) string {
	var sb strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&sb, "%s\t%s\t%t\n", info.Name, info.Vendor, info.Custom)
	}
	return sb.String()
}

func runList(cmd *cobra.Command, args []string) error {
	manager, s, err := common.OpenRegistry(cmd)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	defer s.Close()
	infos, err := manager.ListAllModels(cmd.Context())
	if err != nil {
		slog.Error(err.Error())
		return common.ReportError(cmd, err)
	}
	if flagCustomOnly {
		var custom []cpuconfig.CPUModelInfo
		for _, info := range infos {
			if info.Custom {
				custom = append(custom, info)
			}
		}
		infos = custom
	}
	if flagFormat == table.FormatTxt && flagOutput == "" && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(plainModels(infos))
		return nil
	}
	out, err := table.Render(modelsTable(infos), flagFormat)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	return writeOutput(cmd, out)
}

func writeOutput(cmd *cobra.Command, out []byte) error {
	if flagOutput == "" {
		fmt.Print(string(out))
		if len(out) > 0 && out[len(out)-1] != '\n' {
			fmt.Println()
		}
		return nil
	}
	path, err := util.AbsPath(flagOutput)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil { // #nosec G306
		return common.ReportError(cmd, fmt.Errorf("failed to write %s: %w", path, err))
	}
	slog.Info("wrote model list", slog.String("path", path), slog.String("format", flagFormat))
	fmt.Printf("Model list written to %s\n", path)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	manager, s, err := common.OpenRegistry(cmd)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	defer s.Close()
	model, err := manager.LookupModel(cmd.Context(), args[0], false)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	out, err := table.Render(modelTable(model), flagFormat)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	fmt.Print(string(out))
	if flagFormat == table.FormatJson {
		fmt.Println()
	}
	return nil
}

// splitFlagTokens accepts flags given as one ';' separated list or as repeated values
func splitFlagTokens(values []string) []string {
	var tokens []string
	for _, value := range values {
		for token := range strings.SplitSeq(value, ";") {
			token = strings.TrimSpace(token)
			if token != "" {
				tokens = util.UniqueAppend(tokens, token)
			}
		}
	}
	return tokens
}

// applyPropertyFlags sets the properties given on the command line
func applyPropertyFlags(cmd *cobra.Command, model *cpuconfig.CustomCPUModel) {
	if cmd.Flags().Changed(flagReportedModelName) {
		model.ReportedModel = flagReportedModel
	}
	if cmd.Flags().Changed(flagHiddenName) {
		model.Hidden = flagHidden
	}
	if cmd.Flags().Changed(flagHVVendorIDName) {
		model.HVVendorID = flagHVVendorID
	}
	if cmd.Flags().Changed(flagFlagsName) {
		model.Flags = splitFlagTokens(flagFlags)
	}
}

func runCreate(cmd *cobra.Command, args []string) error {
	manager, s, err := common.OpenRegistry(cmd)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	defer s.Close()
	model := &cpuconfig.CustomCPUModel{Name: args[0]}
	applyPropertyFlags(cmd, model)
	if err := manager.Create(cmd.Context(), model); err != nil {
		slog.Error(err.Error())
		return common.ReportError(cmd, err)
	}
	slog.Info("created custom CPU model", slog.String("name", model.Name))
	fmt.Printf("Created custom CPU model '%s'\n", model.Name)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	manager, s, err := common.OpenRegistry(cmd)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	defer s.Close()
	model, err := manager.LookupModel(cmd.Context(), args[0], false)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	applyPropertyFlags(cmd, model)
	if err := manager.Update(cmd.Context(), model); err != nil {
		slog.Error(err.Error())
		return common.ReportError(cmd, err)
	}
	slog.Info("updated custom CPU model", slog.String("name", model.Name))
	fmt.Printf("Updated custom CPU model '%s'\n", model.Name)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	manager, s, err := common.OpenRegistry(cmd)
	if err != nil {
		return common.ReportError(cmd, err)
	}
	defer s.Close()
	name := strings.TrimPrefix(args[0], cpuconfig.CustomPrefix)
	if err := manager.Delete(cmd.Context(), name); err != nil {
		slog.Error(err.Error())
		return common.ReportError(cmd, err)
	}
	slog.Info("deleted custom CPU model", slog.String("name", name))
	fmt.Printf("Deleted custom CPU model '%s'\n", name)
	return nil
}
