package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"regexp"
	"strings"

	"qmcpu/internal/cpus"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// property names of a CPU configuration
const (
	PropCPUType       = "cputype"
	PropReportedModel = "reported-model"
	PropHidden        = "hidden"
	PropHVVendorID    = "hv-vendor-id"
	PropFlags         = "flags"
)

// CustomPrefix distinguishes custom model references from built-in model names
const CustomPrefix = "custom-"

// DefaultReportedModel is reported to the guest when a custom model does not set one
const DefaultReportedModel = cpus.ModelKVM64

type propertyKind int

const (
	kindString propertyKind = iota
	kindBool
)

type property struct {
	Name        string
	Kind        propertyKind
	Description string
	validate    func(value string) error
}

var (
	reFlagToken   = regexp.MustCompile(`^([+-])([a-zA-Z0-9\-_\.]+)$`)
	reHVVendorID  = regexp.MustCompile(`^[a-zA-Z0-9]{1,12}$`)
	reModelName   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-_\.]*$`)
	reCPUTypeName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-_\.]*$`)
)

// cpuFormat is the single schema of a CPU configuration. The order is the order in
// which properties are written.
var cpuFormat = []property{
	{
		Name:        PropCPUType,
		Kind:        kindString,
		Description: "Emulated CPU type. Can be a built-in type or a custom model name prefixed with 'custom-'.",
		validate: func(value string) error {
			if !reCPUTypeName.MatchString(value) {
				return errors.Wrapf(ErrParse, "invalid cputype '%s'", value)
			}
			return nil
		},
	},
	{
		Name:        PropReportedModel,
		Kind:        kindString,
		Description: "CPU model and vendor to report to the guest. Only valid for custom CPU model definitions.",
		validate: func(value string) error {
			if !cpus.IsBuiltinModel(value) {
				return errors.Wrapf(ErrParse, "reported-model '%s' is not a built-in CPU model", value)
			}
			return nil
		},
	},
	{
		Name:        PropHidden,
		Kind:        kindBool,
		Description: "Do not identify as a KVM virtual machine.",
	},
	{
		Name:        PropHVVendorID,
		Kind:        kindString,
		Description: "The Hyper-V vendor ID. Some drivers or programs inside Windows guests need a specific ID.",
		validate: func(value string) error {
			if !reHVVendorID.MatchString(value) {
				return errors.Wrapf(ErrParse, "hv-vendor-id '%s' must be 1 to 12 alphanumeric characters", value)
			}
			return nil
		},
	},
	{
		Name:        PropFlags,
		Kind:        kindString,
		Description: "List of additional CPU flags separated by ';'. Use '+FLAG' to enable, '-FLAG' to disable a flag.",
		validate: func(value string) error {
			_, err := splitFlags(value)
			return err
		},
	},
}

func lookupProperty(name string) (property, bool) {
	for _, p := range cpuFormat {
		if p.Name == name {
			return p, true
		}
	}
	return property{}, false
}

// SupportedVMFlags are the only flags a VM-specific CPU config may set
var SupportedVMFlags = mapset.NewSet(
	"pcid",
	"spec-ctrl",
	"ibpb",
	"ssbd",
	"virt-ssbd",
	"amd-ssbd",
	"amd-no-ssb",
	"pdpe1gb",
	"md-clear",
	"hv-tlbflush",
	"hv-evmcs",
	"aes",
)

// Policy selects the constraints applied on top of cpuFormat
type Policy struct {
	Name string
	// Forbidden properties must not be present
	Forbidden mapset.Set[string]
	// AllowedFlags restricts flag names, nil allows any flag matching the token grammar
	AllowedFlags mapset.Set[string]
	// CheckType requires cputype to name an existing built-in or custom model
	CheckType bool
}

// CustomModelPolicy applies to administrator defined custom models
var CustomModelPolicy = Policy{
	Name:      "custom CPU model",
	Forbidden: mapset.NewSet[string](),
}

// VMPolicy applies to the CPU config stored in a VM configuration
var VMPolicy = Policy{
	Name:         "VM-specific CPU config",
	Forbidden:    mapset.NewSet(PropReportedModel),
	AllowedFlags: SupportedVMFlags,
	CheckType:    true,
}

// splitFlags splits a ';' separated flag list and checks each token
func splitFlags(value string) ([]string, error) {
	if value == "" {
		return nil, nil
	}
	tokens := strings.Split(value, ";")
	for _, token := range tokens {
		if !reFlagToken.MatchString(token) {
			return nil, errors.Wrapf(ErrParse, "invalid CPU flag '%s', use '+FLAG' or '-FLAG'", token)
		}
	}
	return tokens, nil
}

// flagName strips the leading '+' or '-' of a flag token
func flagName(token string) string {
	return strings.TrimLeft(token, "+-")
}

// IsCustomModel checks if a cputype references a custom model
func IsCustomModel(cputype string) bool {
	return strings.HasPrefix(cputype, CustomPrefix)
}
