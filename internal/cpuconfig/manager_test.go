package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"testing"

	"qmcpu/internal/cpus"
	"qmcpu/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	m := NewRegistryManager(s)

	models, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, models)

	err = m.Create(ctx, &CustomCPUModel{
		Name:    "custom-avx",
		CPUSpec: CPUSpec{ReportedModel: "Haswell", Flags: []string{"+avx", "+avx2"}},
	})
	require.NoError(t, err)

	model, err := m.LookupModel(ctx, "custom-avx", false)
	require.NoError(t, err)
	assert.Equal(t, "avx", model.Name)
	assert.Equal(t, "custom-avx", model.CPUType)
	assert.Equal(t, "Haswell", model.ReportedModel)

	data, err := s.Read(ctx, RegistryPath)
	require.NoError(t, err)
	assert.Equal(t, "cpu-model: avx\n\treported-model Haswell\n\tflags +avx;+avx2\n", string(data))

	err = m.Create(ctx, &CustomCPUModel{Name: "avx"})
	assert.ErrorIs(t, err, ErrModelExists)

	err = m.Update(ctx, &CustomCPUModel{Name: "avx", CPUSpec: CPUSpec{Hidden: true}})
	require.NoError(t, err)
	model, err = m.LookupModel(ctx, "avx", false)
	require.NoError(t, err)
	assert.True(t, model.Hidden)
	assert.Empty(t, model.ReportedModel)
	assert.Empty(t, model.Flags)

	err = m.Update(ctx, &CustomCPUModel{Name: "missing"})
	assert.ErrorIs(t, err, ErrModelNotFound)

	require.NoError(t, m.Delete(ctx, "custom-avx"))
	assert.ErrorIs(t, m.Delete(ctx, "avx"), ErrModelNotFound)

	model, err = m.LookupModel(ctx, "avx", true)
	assert.NoError(t, err)
	assert.Nil(t, model)
	_, err = m.LookupModel(ctx, "avx", false)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRegistryManagerRejectsInvalidModel(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "")
	err := m.Create(ctx, &CustomCPUModel{Name: "bad", CPUSpec: CPUSpec{HVVendorID: "not-alnum!"}})
	assert.ErrorIs(t, err, ErrParse)

	models, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestRegistryManagerKeepsUnknownKeys(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "cpu-model: big\n\tphys-bits 46\n\tflags +pdpe1gb\n")
	require.NoError(t, m.Update(ctx, &CustomCPUModel{Name: "big", CPUSpec: CPUSpec{Flags: []string{"+aes"}}}))

	reg, err := m.Load(ctx)
	require.NoError(t, err)
	text, err := reg.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "cpu-model: big\n\tflags +aes\n\tphys-bits 46\n", text)
}

func TestListAllModels(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "cpu-model: zen\n\treported-model EPYC\n\ncpu-model: plain\n")
	infos, err := m.ListAllModels(ctx)
	require.NoError(t, err)
	require.Len(t, infos, len(cpus.BuiltinModels())+2)

	custom := infos[len(infos)-2:]
	assert.Equal(t, CPUModelInfo{Name: "custom-plain", Custom: true, Vendor: cpus.DefaultVendor}, custom[0])
	assert.Equal(t, CPUModelInfo{Name: "custom-zen", Custom: true, Vendor: cpus.AMDVendor}, custom[1])

	for _, info := range infos[:len(infos)-2] {
		assert.False(t, info.Custom, info.Name)
		assert.NotEmpty(t, info.Vendor, info.Name)
	}
}

func TestPackageLookupModel(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	require.NoError(t, s.Write(ctx, RegistryPath, []byte("cpu-model: a\n\thidden on\n")))

	model, err := LookupModel(ctx, s, "custom-a", false)
	require.NoError(t, err)
	assert.True(t, model.Hidden)

	_, err = LookupModel(ctx, s, "b", false)
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Contains(t, err.Error(), "'b'")

	require.NoError(t, s.Write(ctx, RegistryPath, []byte("cpu-model: a\n\thidden maybe\n")))
	_, err = LookupModel(ctx, s, "custom-a", true)
	assert.ErrorIs(t, err, ErrParse)
}
