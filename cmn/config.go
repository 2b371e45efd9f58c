// Package cmn provides common constants, types, and configuration for the
// corpc client runtime.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Config is the single runtime configuration object threaded through the
// client, the reactor, and the codec pipeline. Unlike a cluster-wide config,
// this one lives for the lifetime of a single process and is never hot-reloaded.
type Config struct {
	Transport TransportConf `json:"transport"`
	Log       LogConf       `json:"log"`
}

type TransportConf struct {
	// Burst is the number of CallTasks a caller may enqueue onto the
	// upstream list without the dispatch fiber having drained it yet.
	Burst int `json:"burst"`
	// MaxHeaderSize caps a whole encoded request frame (20-byte head plus
	// body); EncodeRequest fails a call whose frame would exceed it. Zero
	// disables the cap.
	MaxHeaderSize int `json:"max_header_size"`
	// MaxResponseSize rejects response frames whose body_size exceeds it.
	MaxResponseSize int `json:"max_response_size"`
	// ConnectTimeout bounds the non-blocking connect + POLLOUT wait.
	ConnectTimeout time.Duration `json:"connect_timeout"`
	// ConnectDelay is the cooldown applied to the next CONNECT after any
	// failure on a given channel slot.
	ConnectDelay time.Duration `json:"connect_delay"`
	// IdleTeardown tears a CONNECTED connection down after this much
	// inactivity; zero disables idle teardown.
	IdleTeardown time.Duration `json:"idle_teardown"`
	// Compression selects an optional LZ4 frame compressor; "" disables it.
	Compression string `json:"compression"`
	// CompressThreshold is the minimum body size (bytes) worth compressing.
	CompressThreshold int `json:"compress_threshold"`
}

type LogConf struct {
	Verbosity int `json:"verbosity"`
}

const (
	CompressionNone = ""
	CompressionLZ4  = "lz4"
)

func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConf{
			Burst:             128,
			MaxHeaderSize:     4 * 1024,
			MaxResponseSize:   64 * 1024 * 1024,
			ConnectTimeout:    200 * time.Millisecond,
			ConnectDelay:      time.Second,
			IdleTeardown:      0,
			Compression:       CompressionNone,
			CompressThreshold: 16 * 1024,
		},
		Log: LogConf{Verbosity: 0},
	}
}

// LoadConfig reads a JSON config file (jsoniter, for speed and for parity with
// the rest of the pack) layered on top of DefaultConfig, then applies
// CORPC_-prefixed environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cmn: read config %q: %w", path, err)
		}
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("cmn: parse config %q: %w", path, err)
		}
	}
	applyEnv(cfg)
	Rom.Set(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CORPC_TRANSPORT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transport.Burst = n
		}
	}
	if v := os.Getenv("CORPC_LOG_VERBOSITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Log.Verbosity = n
		}
	}
}

// GCO is a "global config owner" singleton: a handful of long-lived objects
// (the Client, the shared Pipeline factory) read it once at construction
// rather than threading *Config through every call.
type globalConfigOwner struct {
	cfg *Config
}

var gco = globalConfigOwner{cfg: DefaultConfig()}

func (g *globalConfigOwner) Put(cfg *Config) { g.cfg = cfg }
func (g *globalConfigOwner) Get() *Config    { return g.cfg }

func GCO() *globalConfigOwner { return &gco }
