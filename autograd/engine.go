// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package autograd

import (
	"errors"
	"fmt"

	"github.com/born-ml/gradarena/internal/autodiff"
	"github.com/born-ml/gradarena/internal/logger"
	"github.com/born-ml/gradarena/internal/metrics"
	"github.com/born-ml/gradarena/internal/pool"
	"github.com/born-ml/gradarena/internal/tensor"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine owns the three arenas, the tensor allocator over them and a graph
// that reports to Prometheus metrics.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	cfg Config

	headers *pool.Pool[tensor.Tensor]
	buffers *pool.ChunkPool
	nodes   *autodiff.NodePool
	tensors *tensor.PoolAllocator
	graph   *autodiff.Graph

	graphMetrics *metrics.GraphMetrics
	poolMetrics  *metrics.PoolCollector
}

// New builds an Engine from cfg and configures the global logger from its
// LogLevel and LogFormat.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("autograd: %w", err)
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	headers, err := pool.New[tensor.Tensor]("tensors", cfg.TensorSlots)
	if err != nil {
		return nil, fmt.Errorf("autograd: %w", err)
	}
	buffers, err := pool.NewChunkPool("buffers", cfg.BufferSlots, cfg.BufferBytes)
	if err != nil {
		return nil, fmt.Errorf("autograd: %w", err)
	}
	nodes, err := autodiff.NewNodePool(cfg.NodeSlots)
	if err != nil {
		return nil, fmt.Errorf("autograd: %w", err)
	}
	tensors, err := tensor.NewPoolAllocator(headers, buffers)
	if err != nil {
		return nil, fmt.Errorf("autograd: %w", err)
	}

	e := &Engine{
		cfg:          cfg,
		headers:      headers,
		buffers:      buffers,
		nodes:        nodes,
		tensors:      tensors,
		graphMetrics: metrics.NewGraphMetrics(cfg.Namespace),
	}
	e.poolMetrics = metrics.NewPoolCollector(cfg.Namespace, e.Stats)

	e.graph, err = autodiff.New(tensors, nodes, autodiff.WithObserver(e.graphMetrics))
	if err != nil {
		return nil, fmt.Errorf("autograd: %w", err)
	}

	logger.Log.Info("autograd engine ready",
		"tensor_slots", cfg.TensorSlots,
		"buffer_slots", cfg.BufferSlots,
		"buffer_bytes", buffers.ChunkSize(),
		"node_slots", cfg.NodeSlots,
		"arena_bytes", cfg.ArenaBytes())
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Tensors returns the arena-backed tensor allocator.
func (e *Engine) Tensors() *tensor.PoolAllocator {
	return e.tensors
}

// Nodes returns the node arena.
func (e *Engine) Nodes() *NodePool {
	return e.nodes
}

// Backward runs a backward pass from out. See Graph.Backward.
func (e *Engine) Backward(out *tensor.Tensor) error {
	return e.graph.Backward(out)
}

// Stats returns the occupancy of the tensor header, buffer and node arenas
// in that order.
func (e *Engine) Stats() []PoolStats {
	return append(e.tensors.Stats(), e.nodes.Stats())
}

// Register adds the engine's arena and backward pass metrics to reg.
func (e *Engine) Register(reg prometheus.Registerer) error {
	return errors.Join(reg.Register(e.poolMetrics), reg.Register(e.graphMetrics))
}

// Close releases the arenas. Tensors and nodes issued by the engine must
// not be used afterwards.
func (e *Engine) Close() {
	e.nodes.Close()
	e.headers.Close()
	e.buffers.Close()
	logger.Log.Debug("autograd engine closed")
}
