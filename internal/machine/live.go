package machine

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
)

// LiveMachine is one entry of the machine list reported by a running emulator
type LiveMachine struct {
	Name       string
	IsDefault  bool
	IsCurrent  bool
	PVEVersion string // empty when the emulator does not report a revision
	Deprecated bool
}

// BuildVersion is the version of a running emulator binary
type BuildVersion struct {
	Major int
	Minor int
	Micro int
}

func (b BuildVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", b.Major, b.Minor, b.Micro)
}

// Querier talks to the control channel of a running instance
type Querier interface {
	QueryMachines(ctx context.Context, vmid int) ([]LiveMachine, error)
	QueryVersion(ctx context.Context, vmid int) (BuildVersion, error)
}

// CurrentMachine returns the machine type the instance was started with, including
// the +pveN revision when the emulator reports one
func CurrentMachine(ctx context.Context, q Querier, vmid int) (string, error) {
	machines, err := q.QueryMachines(ctx, vmid)
	if err != nil {
		return "", fmt.Errorf("failed to query machines of VM %d: %w", vmid, err)
	}
	for _, m := range machines {
		if !m.IsCurrent {
			continue
		}
		name := m.Name
		if m.PVEVersion != "" {
			name += "+pve" + m.PVEVersion
		}
		if m.Deprecated {
			slog.Warn("running machine type is deprecated", slog.Int("vmid", vmid), slog.String("machine", name))
		}
		return name, nil
	}
	return "", fmt.Errorf("no current machine reported for VM %d", vmid)
}

// RunsAtLeast checks that the running emulator of the instance is at least
// major.minor and provides machine revision extra
func RunsAtLeast(ctx context.Context, q Querier, vmid, major, minor, extra int) (bool, error) {
	v, err := q.QueryVersion(ctx, vmid)
	if err != nil {
		return false, fmt.Errorf("failed to query version of VM %d: %w", vmid, err)
	}
	current, ok := ExtractVersion("", v.String())
	if !ok {
		return false, fmt.Errorf("%w: '%s'", ErrInvalidVersionString, v.String())
	}
	return IsAtLeast(current, major, minor, extra)
}
