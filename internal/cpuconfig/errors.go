package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Error kinds reported by parsing, validation and resolution. Use errors.Is to test
// for them, the returned errors carry additional context.
var (
	ErrParse              = pkgerrors.New("cannot parse property string")
	ErrMissingCPUType     = pkgerrors.New("CPU is missing cputype")
	ErrUnknownBuiltinType = pkgerrors.New("built-in cputype is not defined")
	ErrModelNotFound      = pkgerrors.New("custom CPU model not found")
	ErrModelExists        = pkgerrors.New("custom CPU model already exists")
	ErrFlagNotAllowed     = pkgerrors.New("VM-specific CPU flag not allowed")
	ErrPropertyNotAllowed = pkgerrors.New("property not allowed in VM-specific CPU config")
	ErrCannotParseCPU     = pkgerrors.New("cannot parse cpu description")
	// ErrInternal marks a broken invariant, i.e., a caller bypassed validation
	ErrInternal = pkgerrors.New("internal error")
)

// recoverable errors are suppressed when a caller asks for soft mode
var recoverable = []error{
	ErrParse,
	ErrMissingCPUType,
	ErrUnknownBuiltinType,
	ErrModelNotFound,
	ErrFlagNotAllowed,
	ErrPropertyNotAllowed,
}

func isRecoverable(err error) bool {
	for _, kind := range recoverable {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
