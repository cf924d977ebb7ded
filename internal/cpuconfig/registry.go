package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"context"
	"maps"
	"regexp"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// sectionType is the type written in front of every model section header
const sectionType = "cpu-model"

var (
	reSectionHeader = regexp.MustCompile(`^(\S+):\s*(\S+)\s*$`)
	reSectionLine   = regexp.MustCompile(`^\s+(\S+)(?:\s+(.*\S))?\s*$`)
)

// CustomCPUModel is a named CPU definition from the registry. CPUType always equals
// CustomPrefix + Name.
type CustomCPUModel struct {
	Name string
	CPUSpec
}

// Registry holds the custom models of one registry document. Each record carries the
// stored properties plus the derived cputype.
type Registry struct {
	ids map[string]map[string]string
}

func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]map[string]string)}
}

// ParseRegistry parses a registry document made of sections like
//
//	cpu-model: name
//		reported-model Haswell
//		flags +aes;-pcid
func ParseRegistry(text string) (*Registry, error) {
	reg := NewRegistry()
	var current map[string]string
	var currentName string
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			current = nil
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if current == nil {
				return nil, errors.Wrapf(ErrParse, "line %d: property outside of a section", lineNo)
			}
			m := reSectionLine.FindStringSubmatch(line)
			if m == nil || m[2] == "" {
				return nil, errors.Wrapf(ErrParse, "line %d: expected 'key value' in section '%s'", lineNo, currentName)
			}
			key, value := m[1], m[2]
			if key == PropCPUType {
				// derived from the section header
				continue
			}
			if _, ok := current[key]; ok {
				return nil, errors.Wrapf(ErrParse, "line %d: duplicate property '%s' in section '%s'", lineNo, key, currentName)
			}
			current[key] = value
			continue
		}
		m := reSectionHeader.FindStringSubmatch(line)
		if m == nil {
			return nil, errors.Wrapf(ErrParse, "line %d: invalid section header '%s'", lineNo, line)
		}
		if m[1] != sectionType {
			return nil, errors.Wrapf(ErrParse, "line %d: unknown section type '%s'", lineNo, m[1])
		}
		name := m[2]
		if !reModelName.MatchString(name) {
			return nil, errors.Wrapf(ErrParse, "line %d: invalid model name '%s'", lineNo, name)
		}
		if _, ok := reg.ids[name]; ok {
			return nil, errors.Wrapf(ErrParse, "line %d: duplicate model '%s'", lineNo, name)
		}
		current = map[string]string{PropCPUType: CustomPrefix + name}
		currentName = name
		reg.ids[name] = current
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read registry document")
	}
	return reg, nil
}

// Serialize writes the registry document. The derived cputype is checked against the
// section name and left out, the name is stored in the section header.
func (r *Registry) Serialize() (string, error) {
	var sb strings.Builder
	for i, name := range r.Names() {
		record := r.ids[name]
		cputype := record[PropCPUType]
		if !IsCustomModel(cputype) {
			return "", errors.Wrapf(ErrInternal, "tried saving built-in CPU model (or missing prefix): '%s'", cputype)
		}
		if cputype != CustomPrefix+name {
			return "", errors.Wrapf(ErrInternal, "tried saving custom CPU model with cputype (ignoring prefix: '%s') not equal to name '%s'", cputype, name)
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(sectionType + ": " + name + "\n")
		known := mapset.NewThreadUnsafeSet[string](PropCPUType)
		for _, p := range cpuFormat {
			known.Add(p.Name)
			if value, ok := record[p.Name]; ok && p.Name != PropCPUType {
				sb.WriteString("\t" + p.Name + " " + value + "\n")
			}
		}
		for _, key := range slices.Sorted(maps.Keys(record)) {
			if !known.Contains(key) {
				sb.WriteString("\t" + key + " " + record[key] + "\n")
			}
		}
	}
	return sb.String(), nil
}

// Validate checks every model against the custom model policy
func (r *Registry) Validate() error {
	for _, name := range r.Names() {
		if !reModelName.MatchString(name) {
			return errors.Wrapf(ErrParse, "invalid model name '%s'", name)
		}
		spec, err := specFromProperties(r.ids[name])
		if err != nil {
			return errors.Wrapf(err, "custom model '%s'", name)
		}
		if err := CustomModelPolicy.Check(context.Background(), nil, spec); err != nil {
			return errors.Wrapf(err, "custom model '%s'", name)
		}
	}
	return nil
}

// Names returns the model names in sorted order
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.ids))
}

// Has checks if a model exists, name may carry the prefix
func (r *Registry) Has(name string) bool {
	_, ok := r.ids[strings.TrimPrefix(name, CustomPrefix)]
	return ok
}

// Model returns the model with only the known properties, name may carry the prefix.
// Stored values are checked against the schema, a hand-edited document can hold
// values no write would have accepted.
func (r *Registry) Model(name string) (*CustomCPUModel, error) {
	name = strings.TrimPrefix(name, CustomPrefix)
	record, ok := r.ids[name]
	if !ok {
		return nil, errors.Wrapf(ErrModelNotFound, "custom cpu model '%s' not found", name)
	}
	spec, err := specFromProperties(record)
	if err != nil {
		return nil, errors.Wrapf(err, "custom cpu model '%s'", name)
	}
	return &CustomCPUModel{Name: name, CPUSpec: *spec}, nil
}

// SetModel adds or replaces a model. Stored keys unknown to the schema are kept.
func (r *Registry) SetModel(model *CustomCPUModel) {
	record := model.properties()
	record[PropCPUType] = CustomPrefix + model.Name
	known := mapset.NewThreadUnsafeSet[string]()
	for _, p := range cpuFormat {
		known.Add(p.Name)
	}
	for key, value := range r.ids[model.Name] {
		if !known.Contains(key) {
			record[key] = value
		}
	}
	r.ids[model.Name] = record
}

// Delete removes a model, name may carry the prefix. It returns false when the model
// does not exist.
func (r *Registry) Delete(name string) bool {
	name = strings.TrimPrefix(name, CustomPrefix)
	if _, ok := r.ids[name]; !ok {
		return false
	}
	delete(r.ids, name)
	return true
}

func sortedSet(s mapset.Set[string]) []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(slices.Values(s.ToSlice()))
}
