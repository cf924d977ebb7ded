package cpuconfig

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// parsePropertyString splits a string like "kvm64,flags=+aes;+pcid,hidden=1" into its
// key/value pairs. A single item without '=' is assigned to defaultKey.
func parsePropertyString(s, defaultKey string) (map[string]string, error) {
	props := make(map[string]string)
	s = strings.TrimSpace(s)
	if s == "" {
		return props, nil
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, item := range strings.Split(s, ",") {
		if item == "" {
			return nil, errors.Wrapf(ErrParse, "empty item in '%s'", s)
		}
		key, value, found := strings.Cut(item, "=")
		if !found {
			key, value = defaultKey, item
		}
		if key == "" {
			return nil, errors.Wrapf(ErrParse, "missing property name in '%s'", item)
		}
		if _, ok := lookupProperty(key); !ok {
			return nil, errors.Wrapf(ErrParse, "unknown property '%s'", key)
		}
		if !seen.Add(key) {
			return nil, errors.Wrapf(ErrParse, "duplicate property '%s'", key)
		}
		props[key] = value
	}
	return props, nil
}

// parseBool accepts the boolean spellings of configuration files
func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "on", "yes", "true":
		return true, nil
	case "0", "off", "no", "false":
		return false, nil
	}
	return false, errors.Wrapf(ErrParse, "invalid boolean value '%s'", value)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
