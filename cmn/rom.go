// Package cmn provides common constants, types, and configuration for the
// corpc client runtime.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

// read-mostly, most-often-consulted settings: cached here so hot paths (the
// encoder/decoder running on reactor goroutines) don't have to dereference
// the full Config on every frame.
type readMostly struct {
	verbosity int
}

var Rom readMostly

func (rom *readMostly) Set(cfg *Config) { rom.verbosity = cfg.Log.Verbosity }

func (rom *readMostly) Verbosity() int { return rom.verbosity }

// FastV reports whether logging at the given verbosity should go ahead,
// without formatting the message first.
func (rom *readMostly) FastV(v int) bool { return rom.verbosity >= v }
