// Package hk provides a mechanism for registering cleanup functions that
// are invoked at specified intervals — used by the rpc package to sweep
// idle connections on a ticker instead of threading a one-off timer
// through every Channel.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"sync"
	"time"
)

// Housekeeper runs any number of independently-ticking named callbacks.
type Housekeeper struct {
	mu      sync.Mutex
	cancels map[string]chan struct{}
}

// DefaultHK is the package-level instance most callers use, mirroring the
// teacher's single process-wide housekeeper.
var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{cancels: make(map[string]chan struct{})}
}

// Reg registers f to run every interval until Unreg(name) is called.
// Re-registering an existing name replaces it.
func (h *Housekeeper) Reg(name string, interval time.Duration, f func()) {
	h.Unreg(name)

	stop := make(chan struct{})
	h.mu.Lock()
	h.cancels[name] = stop
	h.mu.Unlock()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				f()
			}
		}
	}()
}

// Unreg stops and removes a previously registered callback; it is a no-op
// if name was never registered.
func (h *Housekeeper) Unreg(name string) {
	h.mu.Lock()
	stop, ok := h.cancels[name]
	if ok {
		delete(h.cancels, name)
	}
	h.mu.Unlock()
	if ok {
		close(stop)
	}
}

func Reg(name string, interval time.Duration, f func()) { DefaultHK.Reg(name, interval, f) }
func Unreg(name string)                                 { DefaultHK.Unreg(name) }
