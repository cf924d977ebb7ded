package model

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"qmcpu/internal/cpuconfig"
	"qmcpu/internal/cpus"
	"qmcpu/internal/table"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFlagTokens(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{name: "none", values: nil, want: nil},
		{name: "semicolon list", values: []string{"+avx;+avx2"}, want: []string{"+avx", "+avx2"}},
		{name: "repeated", values: []string{"+avx", "-pcid"}, want: []string{"+avx", "-pcid"}},
		{name: "duplicates and blanks", values: []string{"+avx; +avx;", "+aes"}, want: []string{"+avx", "+aes"}},
		{name: "clear", values: []string{""}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitFlagTokens(tt.values))
		})
	}
}

func newPropertyCmd() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().StringVar(&flagReportedModel, flagReportedModelName, "", "")
	c.Flags().BoolVar(&flagHidden, flagHiddenName, false, "")
	c.Flags().StringVar(&flagHVVendorID, flagHVVendorIDName, "", "")
	c.Flags().StringSliceVar(&flagFlags, flagFlagsName, nil, "")
	return c
}

func TestApplyPropertyFlags(t *testing.T) {
	existing := func() *cpuconfig.CustomCPUModel {
		return &cpuconfig.CustomCPUModel{
			Name: "avx",
			CPUSpec: cpuconfig.CPUSpec{
				CPUType:       "custom-avx",
				ReportedModel: "Haswell",
				HVVendorID:    "abc",
				Flags:         []string{"+avx"},
			},
		}
	}

	c := newPropertyCmd()
	require.NoError(t, c.Flags().Set(flagHiddenName, "true"))
	model := existing()
	applyPropertyFlags(c, model)
	assert.True(t, model.Hidden)
	assert.Equal(t, "Haswell", model.ReportedModel)
	assert.Equal(t, []string{"+avx"}, model.Flags)

	c = newPropertyCmd()
	require.NoError(t, c.Flags().Set(flagFlagsName, "+aes;-pcid"))
	require.NoError(t, c.Flags().Set(flagReportedModelName, ""))
	model = existing()
	applyPropertyFlags(c, model)
	assert.Equal(t, []string{"+aes", "-pcid"}, model.Flags)
	assert.Empty(t, model.ReportedModel)
	assert.Equal(t, "abc", model.HVVendorID)
}

func TestModelsTable(t *testing.T) {
	infos := []cpuconfig.CPUModelInfo{
		{Name: "Haswell", Vendor: cpus.IntelVendor},
		{Name: "custom-avx", Custom: true, Vendor: cpus.IntelVendor},
	}
	tv := modelsTable(infos)
	assert.True(t, tv.HasRows)
	require.Len(t, tv.Fields, 3)
	assert.Equal(t, []string{"Haswell", "custom-avx"}, tv.Fields[0].Values)
	assert.Equal(t, []string{"false", "true"}, tv.Fields[2].Values)

	assert.Equal(t, "Haswell\tGenuineIntel\tfalse\ncustom-avx\tGenuineIntel\ttrue\n", plainModels(infos))
	assert.Contains(t, table.RenderText(modelsTable(nil)), "No CPU models found.")
}

func TestModelTable(t *testing.T) {
	model := &cpuconfig.CustomCPUModel{
		Name:    "plain",
		CPUSpec: cpuconfig.CPUSpec{CPUType: "custom-plain", Flags: []string{"+aes", "-pcid"}},
	}
	text := table.RenderText(modelTable(model))
	assert.Contains(t, text, "custom-plain\n")
	assert.Contains(t, text, "Reported Model: kvm64 (default)\n")
	assert.Contains(t, text, "Flags:          +aes;-pcid\n")
	assert.Contains(t, text, "Config:         cputype=custom-plain,flags=+aes;-pcid\n")
}
