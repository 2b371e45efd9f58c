// Package main implements corpccli, a small command-line tool for
// invoking corpc RPC methods against a running server, in the flag/color
// idiom of aistore's CLI.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"strconv"
	"time"

	"github.com/urfave/cli"
)

// durationFlagValue defaults a bare numeric flag value ("200") to seconds
// rather than requiring a Go duration suffix, a convenience this CLI
// offers for its `--connect-timeout` flag.
func durationFlagValue(c *cli.Context, name string, dflt time.Duration) time.Duration {
	raw := c.String(name)
	if raw == "" {
		return dflt
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return dflt
}

var (
	hostFlag = cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "server host"}
	portFlag = cli.IntFlag{Name: "port", Value: 9000, Usage: "server port"}
	connFlag = cli.IntFlag{Name: "conns", Value: 1, Usage: "number of connections in the channel"}

	bodyFlag    = cli.StringFlag{Name: "body", Usage: "request body (raw bytes, UTF-8 on the command line)"}
	serviceFlag = cli.IntFlag{Name: "service", Value: 1, Usage: "service id"}
	methodFlag  = cli.IntFlag{Name: "method", Value: 1, Usage: "method index"}
	fafFlag     = cli.BoolFlag{Name: "fire-and-forget", Usage: "do not wait for a response body"}

	countFlag   = cli.IntFlag{Name: "count", Value: 1, Usage: "number of calls to issue"}
	timeoutFlag = cli.StringFlag{Name: "connect-timeout", Value: "200ms", Usage: "connect readiness timeout (e.g. 200ms, or a bare integer for seconds)"}
)
