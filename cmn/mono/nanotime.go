//go:build !mono

// Package mono provides low-level monotonic time used for connect-deadline
// and idle-teardown bookkeeping.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime is the portable fallback for the linkname'd runtime.nanotime used
// when built with the "mono" tag: nanoseconds on the monotonic clock since
// package initialization. Good enough for tick-granularity timers.
func NanoTime() int64 { return int64(time.Since(start)) }
