// Package nlog is the RPC engine's logger: buffered, timestamped, severity-leveled,
// safe for concurrent use from caller fibers and reactor goroutines alike.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// SetVerbose toggles also-to-stderr mirroring of info-level lines; useful
// when embedding the client in a foreground CLI.
func SetVerbose(v bool) { alsoToStderr = v }
