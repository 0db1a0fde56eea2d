// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package autograd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/gradarena/internal/autodiff"
	"github.com/born-ml/gradarena/internal/pool"
	"github.com/born-ml/gradarena/internal/tensor"
)

// Environment variables read by Config.WithEnv.
const (
	EnvTensorSlots = "GRADARENA_TENSOR_SLOTS"
	EnvBufferSlots = "GRADARENA_BUFFER_SLOTS"
	EnvBufferBytes = "GRADARENA_BUFFER_BYTES"
	EnvNodeSlots   = "GRADARENA_NODE_SLOTS"
	EnvNamespace   = "GRADARENA_METRICS_NAMESPACE"
	EnvLogLevel    = "GRADARENA_LOG_LEVEL"
	EnvLogFormat   = "GRADARENA_LOG_FORMAT"
)

// Config sizes the arenas of an Engine.
type Config struct {
	TensorSlots int // Tensor headers, gradients included.
	BufferSlots int // Data buffers, one per tensor.
	BufferBytes int // Bytes per data buffer, rounded up to the buffer alignment.
	NodeSlots   int // Graph nodes.

	Namespace string // Prometheus metric namespace.
	LogLevel  string // debug, info, warn, error or disabled.
	LogFormat string // json or console.
}

// DefaultConfig returns arenas sized for small models.
func DefaultConfig() Config {
	return Config{
		TensorSlots: 4096,
		BufferSlots: 4096,
		BufferBytes: 64 << 10, // 16384 float32 elements.
		NodeSlots:   2048,
		Namespace:   "gradarena",
		LogLevel:    "info",
		LogFormat:   "console",
	}
}

// Validate checks that every arena can be built.
func (c *Config) Validate() error {
	if c.TensorSlots <= 0 {
		return fmt.Errorf("invalid tensor_slots: %d (must be positive)", c.TensorSlots)
	}
	if c.BufferSlots <= 0 {
		return fmt.Errorf("invalid buffer_slots: %d (must be positive)", c.BufferSlots)
	}
	if c.BufferBytes <= 0 {
		return fmt.Errorf("invalid buffer_bytes: %d (must be positive)", c.BufferBytes)
	}
	if c.BufferBytes < tensor.Float64.Size() {
		return fmt.Errorf("invalid buffer_bytes: %d (must hold one float64)", c.BufferBytes)
	}
	if c.NodeSlots <= 0 {
		return fmt.Errorf("invalid node_slots: %d (must be positive)", c.NodeSlots)
	}
	if c.NodeSlots > autodiff.MaxNodes {
		return fmt.Errorf("invalid node_slots: %d (must be <= %d)", c.NodeSlots, autodiff.MaxNodes)
	}
	if c.BufferSlots > c.TensorSlots {
		return fmt.Errorf("invalid buffer_slots: %d (must be <= tensor_slots: %d)", c.BufferSlots, c.TensorSlots)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error", "disabled", "off":
	default:
		return fmt.Errorf("invalid log_level: %q (must be debug, info, warn, error or disabled)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log_format: %q (must be json or console)", c.LogFormat)
	}
	return nil
}

// ArenaBytes returns the memory the buffer arena reserves.
func (c *Config) ArenaBytes() int {
	chunk := (c.BufferBytes + pool.Alignment - 1) &^ (pool.Alignment - 1)
	return c.BufferSlots * chunk
}

// WithEnv returns a copy of c with every GRADARENA_* variable that is set
// applied on top.
func (c Config) WithEnv() (Config, error) {
	ints := []struct {
		key string
		dst *int
	}{
		{EnvTensorSlots, &c.TensorSlots},
		{EnvBufferSlots, &c.BufferSlots},
		{EnvBufferBytes, &c.BufferBytes},
		{EnvNodeSlots, &c.NodeSlots},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return c, fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v, ok := os.LookupEnv(EnvNamespace); ok {
		c.Namespace = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok {
		c.LogFormat = v
	}
	return c, nil
}
