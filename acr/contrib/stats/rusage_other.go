// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

//go:build !unix

package stats

import "time"

func childCPUTime() (time.Duration, bool) { return 0, false }
