package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"strings"

	"qmcpu/internal/cpus"

	"github.com/pkg/errors"
)

// CPUSpec is a parsed CPU configuration, either a custom model definition or the CPU
// setting of a single VM
type CPUSpec struct {
	CPUType       string
	ReportedModel string
	Hidden        bool
	HVVendorID    string
	Flags         []string // '+FLAG' or '-FLAG' tokens in configured order
}

// FlagString joins the flags the way they are configured
func (c *CPUSpec) FlagString() string {
	return strings.Join(c.Flags, ";")
}

// properties returns the set properties keyed by name, booleans only when true
func (c *CPUSpec) properties() map[string]string {
	props := make(map[string]string)
	if c.CPUType != "" {
		props[PropCPUType] = c.CPUType
	}
	if c.ReportedModel != "" {
		props[PropReportedModel] = c.ReportedModel
	}
	if c.Hidden {
		props[PropHidden] = formatBool(c.Hidden)
	}
	if c.HVVendorID != "" {
		props[PropHVVendorID] = c.HVVendorID
	}
	if len(c.Flags) > 0 {
		props[PropFlags] = c.FlagString()
	}
	return props
}

// String renders the spec as a property string, e.g., "cputype=kvm64,flags=+aes"
func (c *CPUSpec) String() string {
	props := c.properties()
	var items []string
	for _, p := range cpuFormat {
		if value, ok := props[p.Name]; ok {
			items = append(items, p.Name+"="+value)
		}
	}
	return strings.Join(items, ",")
}

// specFromProperties checks each known property against the schema and builds the
// spec. Unknown keys are ignored here, the property string parser rejects them.
func specFromProperties(props map[string]string) (*CPUSpec, error) {
	spec := &CPUSpec{}
	for _, p := range cpuFormat {
		value, ok := props[p.Name]
		if !ok {
			continue
		}
		if p.Kind == kindBool {
			b, err := parseBool(value)
			if err != nil {
				return nil, errors.Wrapf(err, "property '%s'", p.Name)
			}
			if p.Name == PropHidden {
				spec.Hidden = b
			}
			continue
		}
		if p.validate != nil {
			if err := p.validate(value); err != nil {
				return nil, err
			}
		}
		switch p.Name {
		case PropCPUType:
			spec.CPUType = value
		case PropReportedModel:
			spec.ReportedModel = value
		case PropHVVendorID:
			spec.HVVendorID = value
		case PropFlags:
			spec.Flags, _ = splitFlags(value)
		}
	}
	return spec, nil
}

// ParseCPUConfBasic parses a CPU property string with the full schema and any flag.
// cputype is required even though the schema cannot enforce it, custom models carry
// their name in the section header. With noerr set, failures return a nil spec.
func ParseCPUConfBasic(cpuString string, noerr bool) (*CPUSpec, error) {
	spec, err := parseCPUConfBasic(cpuString)
	if err != nil {
		if noerr && isRecoverable(err) {
			return nil, nil
		}
		return nil, err
	}
	return spec, nil
}

func parseCPUConfBasic(cpuString string) (*CPUSpec, error) {
	props, err := parsePropertyString(cpuString, PropCPUType)
	if err != nil {
		return nil, err
	}
	spec, err := specFromProperties(props)
	if err != nil {
		return nil, err
	}
	if spec.CPUType == "" {
		return nil, errors.WithStack(ErrMissingCPUType)
	}
	return spec, nil
}

// ParseVMCPUConf parses the CPU setting of a VM. On top of the basic parse, the
// cputype must exist, flags are limited to SupportedVMFlags and reported-model is not
// allowed. With noerr set, validation failures return a nil spec.
func ParseVMCPUConf(ctx context.Context, models ModelSource, cpuString string, noerr bool) (*CPUSpec, error) {
	spec, err := parseCPUConfBasic(cpuString)
	if err == nil {
		err = VMPolicy.Check(ctx, models, spec)
	}
	if err != nil {
		if noerr && isRecoverable(err) {
			return nil, nil
		}
		return nil, err
	}
	return spec, nil
}

// Check applies the policy constraints to a spec that passed the schema
func (p Policy) Check(ctx context.Context, models ModelSource, spec *CPUSpec) error {
	if p.CheckType {
		if IsCustomModel(spec.CPUType) {
			if models == nil {
				return errors.Wrapf(ErrModelNotFound, "no custom model source to resolve '%s'", spec.CPUType)
			}
			if _, err := models.LookupModel(ctx, spec.CPUType, false); err != nil {
				return err
			}
		} else if !cpus.IsBuiltinModel(spec.CPUType) {
			return errors.Wrapf(ErrUnknownBuiltinType, "built-in cputype '%s' is not defined (missing '%s' prefix?)", spec.CPUType, CustomPrefix)
		}
	}
	if p.AllowedFlags != nil {
		for _, token := range spec.Flags {
			if !p.AllowedFlags.Contains(flagName(token)) {
				return errors.Wrapf(ErrFlagNotAllowed, "flag '%s' in %s, allowed flags are: %s", token, p.Name, strings.Join(sortedSet(p.AllowedFlags), ", "))
			}
		}
	}
	props := spec.properties()
	for _, name := range sortedSet(p.Forbidden) {
		if _, ok := props[name]; ok {
			return errors.Wrapf(ErrPropertyNotAllowed, "property '%s' not allowed in %s", name, p.Name)
		}
	}
	return nil
}
