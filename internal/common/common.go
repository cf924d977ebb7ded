// Package common defines data structures and functions that are used by multiple
// application commands, e.g., model, resolve, machine, serve.
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"qmcpu/internal/cpuconfig"
	"qmcpu/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var AppName = filepath.Base(os.Args[0])

// AppContext represents the application context that can be accessed from all commands.
type AppContext struct {
	Config      Config // Config holds the file configuration merged with the global flags.
	LogFilePath string // LogFilePath is the path of the log file, empty when logging elsewhere.
	Version     string // Version is the version of the application.
	Debug       bool
}

type Flag struct {
	Name string
	Help string
}
type FlagGroup struct {
	GroupName string
	Flags     []Flag
}

// GetAppContext returns the application context set by the root command
func GetAppContext(cmd *cobra.Command) AppContext {
	for c := cmd; c != nil; c = c.Parent() {
		if ctx := c.Context(); ctx != nil {
			if appContext, ok := ctx.Value(AppContext{}).(AppContext); ok {
				return appContext
			}
		}
	}
	return AppContext{Config: DefaultConfig()}
}

// OpenStore opens the registry store configured in the application context
func OpenStore(appContext AppContext) (store.Store, error) {
	dir, err := appContext.Config.StoreDir()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(appContext.Config.Store.Backend, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", appContext.Config.Store.Backend, err)
	}
	return s, nil
}

// OpenRegistry opens the configured store and returns a registry manager for it. The
// caller closes the store.
func OpenRegistry(cmd *cobra.Command) (*cpuconfig.RegistryManager, store.Store, error) {
	s, err := OpenStore(GetAppContext(cmd))
	if err != nil {
		return nil, nil, err
	}
	return cpuconfig.NewRegistryManager(s), s, nil
}

// FlagValidationError is used to report an error with a flag
func FlagValidationError(cmd *cobra.Command, msg string) error {
	err := errors.New(msg)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	fmt.Fprintf(os.Stderr, "See '%s --help' for usage details.\n", cmd.CommandPath())
	cmd.SilenceUsage = true
	return err
}

// ReportError prints the error for the user and keeps cobra from printing usage
func ReportError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	cmd.SilenceUsage = true
	return err
}

// UsageFunc returns a usage function that prints the command's flags in groups
func UsageFunc(getFlagGroups func() []FlagGroup) func(cmd *cobra.Command) error {
	return func(cmd *cobra.Command) error {
		cmd.Printf("Usage: %s\n\n", cmd.UseLine())
		if cmd.Example != "" {
			cmd.Printf("Examples:\n%s\n\n", cmd.Example)
		}
		if groups := getFlagGroups(); len(groups) > 0 {
			cmd.Println("Flags:")
			for _, group := range groups {
				cmd.Printf("  %s:\n", group.GroupName)
				for _, flag := range group.Flags {
					flagDefault := ""
					if f := cmd.Flags().Lookup(flag.Name); f != nil && f.DefValue != "" && f.DefValue != "false" {
						flagDefault = fmt.Sprintf(" (default: %s)", f.DefValue)
					}
					cmd.Printf("    --%-20s %s%s\n", flag.Name, flag.Help, flagDefault)
				}
			}
		}
		cmd.Println("\nGlobal Flags:")
		cmd.Root().PersistentFlags().VisitAll(func(pf *pflag.Flag) {
			flagDefault := ""
			if pf.DefValue != "" && pf.DefValue != "false" {
				flagDefault = fmt.Sprintf(" (default: %s)", pf.DefValue)
			}
			cmd.Printf("  --%-20s %s%s\n", pf.Name, pf.Usage, flagDefault)
		})
		return nil
	}
}
