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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/simonvetter/modbus"
)

// Writer stores serial numbers on Modbus slaves.
type Writer struct {
	opts    *writerOptions
	logger  *slog.Logger
	metrics *Metrics
}

// NewWriter creates a new Writer.
func NewWriter(opts ...Option) *Writer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	m := o.metrics
	if m == nil {
		m = NewMetrics()
	}

	return &Writer{
		opts:    o,
		logger:  o.logger,
		metrics: m,
	}
}

// Settings returns the transport settings used for new connections.
func (w *Writer) Settings() Settings {
	return w.opts.settings
}

// Metrics returns the writer metrics.
func (w *Writer) Metrics() *Metrics {
	return w.metrics
}

// SetSerialNumber writes value into the serial number register of the slave
// at slaveAddress on port, reads the register back and returns what the
// device reported. A confirmed value that differs from value is not an error.
func (w *Writer) SetSerialNumber(ctx context.Context, port string, slaveAddress, value int) (*Result, error) {
	if slaveAddress < MinSlaveAddress || slaveAddress > MaxSlaveAddress {
		return nil, NewError(KindValue, "validate slave address",
			fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidSlaveAddress, slaveAddress, MinSlaveAddress, MaxSlaveAddress))
	}
	if value < 0 || value > MaxRegisterValue {
		return nil, NewError(KindValue, "validate value",
			fmt.Errorf("%w: %d (want 0-%d)", ErrValueOutOfRange, value, MaxRegisterValue))
	}
	if err := w.opts.settings.Validate(); err != nil {
		return nil, NewError(KindValue, "validate settings", err)
	}

	url, err := DeviceURL(port)
	if err != nil {
		return nil, NewError(KindValue, "resolve port", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, NewError(KindTransport, "open "+url, err)
	}

	start := time.Now()
	w.metrics.Exchanges.Add(1)

	res, err := w.exchange(ctx, url, uint8(slaveAddress), uint16(value))
	if err != nil {
		w.metrics.Errors.Add(1)
		return nil, err
	}

	res.Port = port
	res.Elapsed = time.Since(start)
	w.metrics.Successes.Add(1)
	w.metrics.Latency.Observe(res.Elapsed)

	if !res.Matched() {
		w.metrics.Mismatches.Add(1)
		w.logger.Warn("device reported a different value than written",
			slog.String("port", port),
			slog.Int("slave", int(res.SlaveAddress)),
			slog.Int("requested", int(res.Requested)),
			slog.Int("confirmed", int(res.Confirmed)))
	}

	return res, nil
}

func (w *Writer) exchange(ctx context.Context, url string, slave uint8, value uint16) (*Result, error) {
	conf := clientConfiguration(url, w.opts.settings)
	conf.Logger = slog.NewLogLogger(w.logger.Handler(), slog.LevelDebug)

	conn, err := w.opts.dialer(conf)
	if err != nil {
		return nil, classify("create client", KindValue, err)
	}

	w.logger.Debug("opening connection",
		slog.String("url", url),
		slog.Int("slave", int(slave)),
		slog.String("settings", w.opts.settings.String()))

	t := time.Now()
	err = conn.Open()
	w.metrics.observe(OpOpen, time.Since(t), err)
	if err != nil {
		if isSerialURL(url) {
			w.logger.Debug("serial ports available on this host", slog.Any("ports", availablePorts()))
		}
		return nil, classify("open "+url, KindTransport, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			w.logger.Debug("close failed", slog.String("error", err.Error()))
		}
	}()

	if err := conn.SetUnitId(slave); err != nil {
		return nil, classify("set unit id", KindValue, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, NewError(KindTransport, fmt.Sprintf("write register %d", SerialNumberRegister), err)
	}

	t = time.Now()
	err = conn.WriteRegister(SerialNumberRegister, value)
	w.metrics.observe(OpWriteRegister, time.Since(t), err)
	if err != nil {
		return nil, classify(fmt.Sprintf("write register %d", SerialNumberRegister), KindTransport, err)
	}
	w.logger.Debug("register written", slog.Int("register", int(SerialNumberRegister)), slog.Int("value", int(value)))

	if err := ctx.Err(); err != nil {
		return nil, NewError(KindTransport, fmt.Sprintf("read register %d", SerialNumberRegister), err)
	}

	t = time.Now()
	confirmed, err := conn.ReadRegister(SerialNumberRegister, modbus.HOLDING_REGISTER)
	w.metrics.observe(OpReadRegister, time.Since(t), err)
	if err != nil {
		return nil, classify(fmt.Sprintf("read register %d", SerialNumberRegister), KindTransport, err)
	}
	w.logger.Debug("register read back", slog.Int("register", int(SerialNumberRegister)), slog.Int("value", int(confirmed)))

	return &Result{
		SlaveAddress: slave,
		Register:     SerialNumberRegister,
		Requested:    value,
		Confirmed:    confirmed,
	}, nil
}
