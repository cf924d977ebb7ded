package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegistryDoc = `# custom models
cpu-model: avx
	flags +avx;+avx2
	reported-model Haswell

cpu-model: basic
	hidden 1
	cputype custom-ignored
	phys-bits 40
`

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry(testRegistryDoc)
	require.NoError(t, err)
	assert.Equal(t, []string{"avx", "basic"}, reg.Names())

	avx, err := reg.Model("custom-avx")
	require.NoError(t, err)
	assert.Equal(t, "avx", avx.Name)
	assert.Equal(t, "custom-avx", avx.CPUType)
	assert.Equal(t, "Haswell", avx.ReportedModel)
	assert.Equal(t, []string{"+avx", "+avx2"}, avx.Flags)
	assert.False(t, avx.Hidden)

	basic, err := reg.Model("basic")
	require.NoError(t, err)
	assert.Equal(t, "custom-basic", basic.CPUType)
	assert.True(t, basic.Hidden)
	assert.Empty(t, basic.ReportedModel)

	_, err = reg.Model("missing")
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.True(t, reg.Has("custom-basic"))
	assert.False(t, reg.Has("missing"))

	require.NoError(t, reg.Validate())
}

func TestParseRegistryErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "property outside section", doc: "\tflags +aes\n"},
		{name: "property without value", doc: "cpu-model: a\n\tflags\n"},
		{name: "unknown section type", doc: "vm: a\n\tflags +aes\n"},
		{name: "invalid name", doc: "cpu-model: -a\n"},
		{name: "duplicate model", doc: "cpu-model: a\n\ncpu-model: a\n"},
		{name: "duplicate property", doc: "cpu-model: a\n\tflags +aes\n\tflags +pcid\n"},
		{name: "invalid header", doc: "just words here\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry(tt.doc)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseRegistryEmpty(t *testing.T) {
	reg, err := ParseRegistry("")
	require.NoError(t, err)
	assert.Empty(t, reg.Names())
	text, err := reg.Serialize()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestSerializeRegistry(t *testing.T) {
	reg, err := ParseRegistry(testRegistryDoc)
	require.NoError(t, err)
	text, err := reg.Serialize()
	require.NoError(t, err)
	want := "cpu-model: avx\n" +
		"\treported-model Haswell\n" +
		"\tflags +avx;+avx2\n" +
		"\n" +
		"cpu-model: basic\n" +
		"\thidden 1\n" +
		"\tphys-bits 40\n"
	assert.Equal(t, want, text)

	again, err := ParseRegistry(text)
	require.NoError(t, err)
	assert.Equal(t, reg, again)
}

func TestSerializeRegistryInternalErrors(t *testing.T) {
	reg := NewRegistry()
	reg.ids["x"] = map[string]string{PropCPUType: "kvm64"}
	_, err := reg.Serialize()
	assert.ErrorIs(t, err, ErrInternal)

	reg = NewRegistry()
	reg.ids["x"] = map[string]string{PropCPUType: "custom-y"}
	_, err = reg.Serialize()
	assert.ErrorIs(t, err, ErrInternal)
}

func TestRegistrySetModel(t *testing.T) {
	reg, err := ParseRegistry(testRegistryDoc)
	require.NoError(t, err)

	reg.SetModel(&CustomCPUModel{Name: "basic", CPUSpec: CPUSpec{HVVendorID: "myvendor"}})
	basic, err := reg.Model("basic")
	require.NoError(t, err)
	assert.False(t, basic.Hidden)
	assert.Equal(t, "myvendor", basic.HVVendorID)
	assert.Equal(t, "40", reg.ids["basic"]["phys-bits"])

	assert.True(t, reg.Delete("custom-basic"))
	assert.False(t, reg.Delete("basic"))
	assert.Equal(t, []string{"avx"}, reg.Names())
}

func TestRegistryModelInvalidStoredValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "invalid boolean", doc: "cpu-model: a\n\thidden maybe\n"},
		{name: "invalid flag token", doc: "cpu-model: a\n\tflags garbage\n"},
		{name: "unknown reported model", doc: "cpu-model: a\n\treported-model NotACPU\n"},
		{name: "invalid hv vendor id", doc: "cpu-model: a\n\thv-vendor-id way-too-long-id\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := ParseRegistry(tt.doc)
			require.NoError(t, err)
			_, err = reg.Model("a")
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestRegistryValidate(t *testing.T) {
	reg := NewRegistry()
	reg.SetModel(&CustomCPUModel{Name: "bad", CPUSpec: CPUSpec{ReportedModel: "NotACPU"}})
	assert.ErrorIs(t, reg.Validate(), ErrParse)

	reg = NewRegistry()
	reg.SetModel(&CustomCPUModel{Name: "any", CPUSpec: CPUSpec{Flags: []string{"+avx512f", "-x2apic"}}})
	assert.NoError(t, reg.Validate())
}
