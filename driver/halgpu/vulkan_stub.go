// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build nogpu

package halgpu

import "errors"

// Open fails: the Vulkan backend is excluded by the nogpu build tag.
func Open(...Option) (*Driver, error) {
	return nil, errors.New("halgpu: built with nogpu")
}
