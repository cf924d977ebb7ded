package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"qmcpu/internal/cpus"

	"github.com/pkg/errors"
)

// RegistryPath is the well-known store path of the custom model registry
const RegistryPath = "virtual-guest/cpu-models.conf"

// DocumentStore reads and writes whole documents by path. Locking between processes
// is up to the implementation.
type DocumentStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
}

// ModelSource resolves custom model references
type ModelSource interface {
	LookupModel(ctx context.Context, name string, noerr bool) (*CustomCPUModel, error)
}

// CPUModelInfo describes one selectable model for listings
type CPUModelInfo struct {
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
	Vendor string `json:"vendor"`
}

// RegistryManager loads, validates and writes the registry through a DocumentStore
type RegistryManager struct {
	store DocumentStore
	path  string
	mu    sync.Mutex // serializes read-modify-write cycles of this process
}

func NewRegistryManager(store DocumentStore) *RegistryManager {
	return &RegistryManager{store: store, path: RegistryPath}
}

// LoadRegistry reads and parses the registry document from a store
func LoadRegistry(ctx context.Context, store DocumentStore) (*Registry, error) {
	data, err := store.Read(ctx, RegistryPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", RegistryPath)
	}
	return ParseRegistry(string(data))
}

// LookupModel returns a custom model from the registry in store. The name may carry
// the custom- prefix. A missing model is an error unless noerr is set, in which case
// nil is returned.
func LookupModel(ctx context.Context, store DocumentStore, name string, noerr bool) (*CustomCPUModel, error) {
	reg, err := LoadRegistry(ctx, store)
	if err != nil {
		return nil, err
	}
	model, err := reg.Model(name)
	if err != nil {
		if noerr && errors.Is(err, ErrModelNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model, nil
}

func (m *RegistryManager) Load(ctx context.Context) (*Registry, error) {
	return LoadRegistry(ctx, m.store)
}

// Save validates the registry and writes it back
func (m *RegistryManager) Save(ctx context.Context, reg *Registry) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	text, err := reg.Serialize()
	if err != nil {
		return err
	}
	if err := m.store.Write(ctx, m.path, []byte(text)); err != nil {
		return errors.Wrapf(err, "failed to write %s", m.path)
	}
	slog.Debug("saved custom CPU models", slog.String("path", m.path), slog.Int("count", len(reg.ids)))
	return nil
}

func (m *RegistryManager) LookupModel(ctx context.Context, name string, noerr bool) (*CustomCPUModel, error) {
	return LookupModel(ctx, m.store, name, noerr)
}

// Create adds a new custom model, it fails when the name is taken
func (m *RegistryManager) Create(ctx context.Context, model *CustomCPUModel) error {
	return m.modify(ctx, func(reg *Registry) error {
		model.Name = strings.TrimPrefix(model.Name, CustomPrefix)
		if reg.Has(model.Name) {
			return errors.Wrapf(ErrModelExists, "custom cpu model '%s' already exists", model.Name)
		}
		reg.SetModel(model)
		return nil
	})
}

// Update replaces the properties of an existing custom model
func (m *RegistryManager) Update(ctx context.Context, model *CustomCPUModel) error {
	return m.modify(ctx, func(reg *Registry) error {
		model.Name = strings.TrimPrefix(model.Name, CustomPrefix)
		if !reg.Has(model.Name) {
			return errors.Wrapf(ErrModelNotFound, "custom cpu model '%s' not found", model.Name)
		}
		reg.SetModel(model)
		return nil
	})
}

// Delete removes a custom model. VMs still referencing it fail at resolution time.
func (m *RegistryManager) Delete(ctx context.Context, name string) error {
	return m.modify(ctx, func(reg *Registry) error {
		if !reg.Delete(name) {
			return errors.Wrapf(ErrModelNotFound, "custom cpu model '%s' not found", strings.TrimPrefix(name, CustomPrefix))
		}
		return nil
	})
}

// List returns all custom models sorted by name
func (m *RegistryManager) List(ctx context.Context) ([]*CustomCPUModel, error) {
	reg, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	var models []*CustomCPUModel
	for _, name := range reg.Names() {
		model, err := reg.Model(name)
		if err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	return models, nil
}

// ListAllModels returns the built-in models followed by the custom models. Custom
// models report the vendor of their reported model.
func (m *RegistryManager) ListAllModels(ctx context.Context) ([]CPUModelInfo, error) {
	var infos []CPUModelInfo
	for _, name := range cpus.BuiltinModels() {
		vendor, _ := cpus.GetVendor(name)
		infos = append(infos, CPUModelInfo{Name: name, Vendor: vendor})
	}
	custom, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, model := range custom {
		reported := model.ReportedModel
		if reported == "" {
			reported = DefaultReportedModel
		}
		vendor, _ := cpus.GetVendor(reported)
		infos = append(infos, CPUModelInfo{Name: model.CPUType, Custom: true, Vendor: vendor})
	}
	return infos, nil
}

func (m *RegistryManager) modify(ctx context.Context, change func(reg *Registry) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.Load(ctx)
	if err != nil {
		return err
	}
	if err := change(reg); err != nil {
		return err
	}
	return m.Save(ctx, reg)
}
