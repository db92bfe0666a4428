// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serialno

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a simple atomic counter.
type Counter struct {
	value int64
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.value, delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Reset resets the counter to zero.
func (c *Counter) Reset() {
	atomic.StoreInt64(&c.value, 0)
}

var latencyLabels = []string{"1ms", "2ms", "5ms", "10ms", "20ms", "50ms", "100ms", "200ms", "500ms", "1s+"}

// LatencyHistogram tracks latency distribution.
type LatencyHistogram struct {
	mu      sync.Mutex
	buckets []int64   // count per bucket
	bounds  []float64 // upper bounds in ms
	sum     float64
	count   int64
	min     float64
	max     float64
}

// NewLatencyHistogram creates a new latency histogram with default buckets.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		buckets: make([]int64, len(latencyLabels)),
		bounds:  []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000}, // ms
		min:     -1,
		max:     -1,
	}
}

// Observe records a latency observation.
func (h *LatencyHistogram) Observe(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += ms
	h.count++

	if h.min < 0 || ms < h.min {
		h.min = ms
	}
	if ms > h.max {
		h.max = ms
	}

	for i, bound := range h.bounds {
		if ms <= bound {
			h.buckets[i]++
			return
		}
	}
	h.buckets[len(h.buckets)-1]++
}

// Stats returns histogram statistics.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := LatencyStats{
		Count:   h.count,
		Sum:     h.sum,
		Buckets: make(map[string]int64),
	}

	if h.count > 0 {
		stats.Avg = h.sum / float64(h.count)
		stats.Min = h.min
		stats.Max = h.max
	}

	for i, count := range h.buckets {
		stats.Buckets[latencyLabels[i]] = count
	}

	return stats
}

// Reset resets the histogram.
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.buckets {
		h.buckets[i] = 0
	}
	h.sum = 0
	h.count = 0
	h.min = -1
	h.max = -1
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int64            `json:"count"`
	Sum     float64          `json:"sum_ms"`
	Avg     float64          `json:"avg_ms"`
	Min     float64          `json:"min_ms"`
	Max     float64          `json:"max_ms"`
	Buckets map[string]int64 `json:"buckets"`
}

// Operation names one step of the exchange.
type Operation string

// Exchange steps.
const (
	OpOpen          Operation = "open"
	OpWriteRegister Operation = "write_register"
	OpReadRegister  Operation = "read_register"
)

// Metrics holds the writer's exchange metrics.
type Metrics struct {
	Exchanges  Counter
	Successes  Counter
	Errors     Counter
	Mismatches Counter
	Latency    *LatencyHistogram

	// Per-operation metrics
	opMetrics sync.Map // Operation -> *OperationMetrics
}

// OperationMetrics holds metrics for a single exchange step.
type OperationMetrics struct {
	Requests Counter
	Errors   Counter
	Latency  *LatencyHistogram
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		Latency: NewLatencyHistogram(),
	}
}

// ForOperation returns metrics for a specific step.
func (m *Metrics) ForOperation(op Operation) *OperationMetrics {
	if val, ok := m.opMetrics.Load(op); ok {
		return val.(*OperationMetrics)
	}

	om := &OperationMetrics{
		Latency: NewLatencyHistogram(),
	}
	actual, _ := m.opMetrics.LoadOrStore(op, om)
	return actual.(*OperationMetrics)
}

// observe records the outcome of one step.
func (m *Metrics) observe(op Operation, d time.Duration, err error) {
	om := m.ForOperation(op)
	om.Requests.Add(1)
	om.Latency.Observe(d)
	if err != nil {
		om.Errors.Add(1)
	}
}

// Collect returns all metrics as a map.
func (m *Metrics) Collect() map[string]interface{} {
	result := map[string]interface{}{
		"exchanges":  m.Exchanges.Value(),
		"successes":  m.Successes.Value(),
		"errors":     m.Errors.Value(),
		"mismatches": m.Mismatches.Value(),
		"latency":    m.Latency.Stats(),
	}

	opStats := make(map[string]interface{})
	m.opMetrics.Range(func(key, value interface{}) bool {
		op := key.(Operation)
		om := value.(*OperationMetrics)
		opStats[string(op)] = map[string]interface{}{
			"requests": om.Requests.Value(),
			"errors":   om.Errors.Value(),
			"latency":  om.Latency.Stats(),
		}
		return true
	})
	if len(opStats) > 0 {
		result["operations"] = opStats
	}

	return result
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	m.Exchanges.Reset()
	m.Successes.Reset()
	m.Errors.Reset()
	m.Mismatches.Reset()
	m.Latency.Reset()

	m.opMetrics.Range(func(key, value interface{}) bool {
		om := value.(*OperationMetrics)
		om.Requests.Reset()
		om.Errors.Reset()
		om.Latency.Reset()
		return true
	})
}
