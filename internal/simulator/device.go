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

// Package simulator provides an in-memory Modbus slave for bench and
// integration testing of the serial number writer.
package simulator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

const registerCount = 65536

// Option is a functional option for configuring the device.
type Option func(*Device)

// WithClamp makes the device store min(value, limit) on writes.
func WithClamp(limit uint16) Option {
	return func(d *Device) {
		d.clamp = &limit
	}
}

// WithResponseDelay delays every holding register request by delay.
func WithResponseDelay(delay time.Duration) Option {
	return func(d *Device) {
		d.delay = delay
	}
}

// WithUnits restricts the device to answer only the given unit ids.
// Requests for other units fail with a gateway exception.
func WithUnits(ids ...uint8) Option {
	return func(d *Device) {
		d.units = make(map[uint8]bool, len(ids))
		for _, id := range ids {
			d.units[id] = true
		}
	}
}

// WithWritableRegisters restricts writes to the given holding registers.
// A write touching any other register fails with an illegal function
// exception, as on the field devices. Reads are not restricted.
func WithWritableRegisters(addrs ...uint16) Option {
	return func(d *Device) {
		d.writable = make(map[uint16]bool, len(addrs))
		for _, addr := range addrs {
			d.writable[addr] = true
		}
	}
}

// WithInitialRegister presets addr to value in the register bank of every
// unit, including units first addressed after the device started.
func WithInitialRegister(addr, value uint16) Option {
	return func(d *Device) {
		if d.initial == nil {
			d.initial = make(map[uint16]uint16)
		}
		d.initial[addr] = value
	}
}

// WithLogger sets the logger for the device.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// Device is a Modbus slave holding registers in memory.
// It implements modbus.RequestHandler.
type Device struct {
	mu          sync.RWMutex
	holdingRegs map[uint8][]uint16
	units       map[uint8]bool
	writable    map[uint16]bool
	initial     map[uint16]uint16
	clamp       *uint16
	delay       time.Duration
	writes      int
	reads       int
	logger      *slog.Logger
}

// NewDevice creates a new Device.
func NewDevice(opts ...Option) *Device {
	d := &Device{
		holdingRegs: make(map[uint8][]uint16),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// unitLocked returns the register bank of unitID, allocating it on first use.
// Must be called with write lock held.
func (d *Device) unitLocked(unitID uint8) []uint16 {
	regs, ok := d.holdingRegs[unitID]
	if !ok {
		regs = make([]uint16, registerCount)
		for addr, v := range d.initial {
			regs[addr] = v
		}
		d.holdingRegs[unitID] = regs
	}
	return regs
}

// SetHoldingRegister sets a holding register value directly.
func (d *Device) SetHoldingRegister(unitID uint8, addr, value uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unitLocked(unitID)[addr] = value
}

// HoldingRegister returns a holding register value.
func (d *Device) HoldingRegister(unitID uint8, addr uint16) uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	regs, ok := d.holdingRegs[unitID]
	if !ok {
		return d.initial[addr]
	}
	return regs[addr]
}

// Counts returns the number of holding register writes and reads served.
func (d *Device) Counts() (writes, reads int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.writes, d.reads
}

// HandleHoldingRegisters serves FC03, FC06 and FC16.
func (d *Device) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	if d.units != nil && !d.units[req.UnitId] {
		return nil, modbus.ErrGWTargetFailedToRespond
	}
	if int(req.Addr)+int(req.Quantity) > registerCount {
		return nil, modbus.ErrIllegalDataAddress
	}
	if req.IsWrite && d.writable != nil {
		for i := range req.Args {
			if !d.writable[req.Addr+uint16(i)] {
				return nil, modbus.ErrIllegalFunction
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.unitLocked(req.UnitId)

	if req.IsWrite {
		d.writes++
		for i, v := range req.Args {
			if d.clamp != nil && v > *d.clamp {
				v = *d.clamp
			}
			regs[int(req.Addr)+i] = v
		}
		d.logger.Debug("holding registers written",
			slog.Int("unit", int(req.UnitId)),
			slog.Int("addr", int(req.Addr)),
			slog.Any("values", req.Args))
		return nil, nil
	}

	d.reads++
	start := int(req.Addr)
	res := make([]uint16, req.Quantity)
	copy(res, regs[start:start+int(req.Quantity)])
	return res, nil
}

// HandleCoils is not supported by the device.
func (d *Device) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleDiscreteInputs is not supported by the device.
func (d *Device) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleInputRegisters is not supported by the device.
func (d *Device) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

// Serve starts a modbus server for d listening at url (e.g.
// tcp://localhost:5502). Stop the returned server when done.
func Serve(url string, d *Device) (*modbus.ModbusServer, error) {
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    30 * time.Second,
		MaxClients: 10,
		Logger:     slog.NewLogLogger(d.logger.Handler(), slog.LevelDebug),
	}, d)
	if err != nil {
		return nil, err
	}
	if err := server.Start(); err != nil {
		return nil, err
	}
	return server, nil
}
