// Package sys provides methods to read system information used to size the
// client's default connection pools and reactor goroutine counts.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"os"
	"runtime"

	"github.com/vbirds/corpc/cmn/nlog"
)

const maxProcsEnvVar = "GOMAXPROCS"

// NumCPU returns runtime.NumCPU(); kept as a named indirection so the rest of
// the module has one place to special-case containerized deployments later.
func NumCPU() int { return runtime.NumCPU() }

// SetMaxProcs sets GOMAXPROCS = NumCPU unless already overridden via Go environment.
func SetMaxProcs() {
	if val, exists := os.LookupEnv(maxProcsEnvVar); exists {
		nlog.Warningf("GOMAXPROCS is set via Go environment %q: %q", maxProcsEnvVar, val)
		return
	}
	maxprocs := runtime.GOMAXPROCS(0)
	ncpu := NumCPU()
	if maxprocs > ncpu {
		nlog.Warningf("Reducing GOMAXPROCS (%d) to %d (num CPUs)", maxprocs, ncpu)
		runtime.GOMAXPROCS(ncpu)
	}
}
