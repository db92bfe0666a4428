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
	"log/slog"
	"time"
)

// Option is a functional option for configuring the writer.
type Option func(*writerOptions)

type writerOptions struct {
	settings Settings
	dialer   Dialer
	logger   *slog.Logger
	metrics  *Metrics
}

func defaultOptions() *writerOptions {
	return &writerOptions{
		settings: DefaultSettings(),
		dialer:   DialModbus,
		logger:   slog.Default(),
	}
}

// WithSettings replaces the whole transport configuration.
func WithSettings(s Settings) Option {
	return func(o *writerOptions) {
		o.settings = s
	}
}

// WithBaudRate sets the serial line speed.
func WithBaudRate(baud uint) Option {
	return func(o *writerOptions) {
		o.settings.BaudRate = baud
	}
}

// WithParity sets the serial line parity.
func WithParity(p Parity) Option {
	return func(o *writerOptions) {
		o.settings.Parity = p
	}
}

// WithTimeout sets the per-read transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *writerOptions) {
		o.settings.Timeout = d
	}
}

// WithDialer sets the function used to create connections.
func WithDialer(d Dialer) Option {
	return func(o *writerOptions) {
		o.dialer = d
	}
}

// WithLogger sets the logger for the writer.
func WithLogger(logger *slog.Logger) Option {
	return func(o *writerOptions) {
		o.logger = logger
	}
}

// WithMetrics makes the writer record into m instead of its own instance.
func WithMetrics(m *Metrics) Option {
	return func(o *writerOptions) {
		o.metrics = m
	}
}
