// Package cos provides common low-level types and utilities for the corpc
// client runtime.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"strconv"
	"time"

	"github.com/vbirds/corpc/cmn/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating short, log-friendly session IDs.
const sidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const LenSessionID = 9 // per https://github.com/teris-io/shortid#id-length

var (
	sidgen *shortid.Shortid
	rtie   atomic.Uint32
)

func init() {
	sidgen = shortid.MustNew(4 /*worker*/, sidABC, uint64(time.Now().UnixNano()))
}

// GenSessionID returns a short, human-loggable identifier; newConnection in
// the rpc package stores one on every Connection. It never goes on the wire.
func GenSessionID() string { return sidgen.MustGenerate() }

// seed for HashKey; arbitrary but fixed so the same "host:port" always maps
// to the same registry key across a process's lifetime.
const hashSeed = 0x2f6e6573736c6572

// HashKey is a fast, non-cryptographic 64-bit hash used to key the client's
// channel registry by "host:port" without retaining the string itself.
func HashKey(s string) uint64 { return xxhash.ChecksumString64S(s, hashSeed) }

// GenTie returns a 3-byte tie-breaker string drawn from a process-wide
// counter. The rpc Channel picker is plain round-robin and does not use it.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := sidABC[tie&0x3f]
	b1 := sidABC[(^tie)&0x3f]
	b2 := sidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

func FormatUint(v uint64) string { return strconv.FormatUint(v, 36) }
