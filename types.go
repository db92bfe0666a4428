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

// Package serialno writes a device serial number into a Modbus holding
// register over a serial line and reads it back for confirmation.
package serialno

import (
	"fmt"
	"strings"
	"time"

	"github.com/simonvetter/modbus"
)

// SerialNumberRegister is the holding register that stores the serial number.
const SerialNumberRegister uint16 = 2

// Protocol limits.
const (
	// MinSlaveAddress is the lowest accepted slave address (0 is broadcast).
	MinSlaveAddress = 0

	// MaxSlaveAddress is the highest slave address allowed on a serial bus.
	MaxSlaveAddress = 247

	// MaxRegisterValue is the largest value a 16-bit register can hold.
	MaxRegisterValue = 0xFFFF
)

// Default transport settings.
const (
	DefaultBaudRate = 115200
	DefaultDataBits = 8
	DefaultStopBits = 1

	// DefaultTimeout bounds every low-level transport read.
	DefaultTimeout = 50 * time.Millisecond
)

// Parity is the serial line parity mode.
type Parity uint

// Parity modes, numerically equal to the modbus client's PARITY_* constants.
const (
	ParityNone Parity = Parity(modbus.PARITY_NONE)
	ParityEven Parity = Parity(modbus.PARITY_EVEN)
	ParityOdd  Parity = Parity(modbus.PARITY_ODD)
)

// String returns the string representation of the parity mode.
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return fmt.Sprintf("Parity(%d)", uint(p))
	}
}

// ParseParity parses "none", "even" or "odd" (or N, E, O).
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "n", "":
		return ParityNone, nil
	case "even", "e":
		return ParityEven, nil
	case "odd", "o":
		return ParityOdd, nil
	default:
		return 0, fmt.Errorf("%w: unknown parity %q", ErrInvalidSettings, s)
	}
}

// Settings holds the serial transport parameters.
type Settings struct {
	BaudRate uint
	DataBits uint
	Parity   Parity
	StopBits uint
	Timeout  time.Duration
}

// DefaultSettings returns 115200 baud, 8N1 with a 50ms read timeout.
func DefaultSettings() Settings {
	return Settings{
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   ParityNone,
		StopBits: DefaultStopBits,
		Timeout:  DefaultTimeout,
	}
}

// Validate checks the settings are usable for a serial line.
func (s Settings) Validate() error {
	switch {
	case s.BaudRate == 0:
		return fmt.Errorf("%w: baud rate must be positive", ErrInvalidSettings)
	case s.DataBits < 5 || s.DataBits > 8:
		return fmt.Errorf("%w: data bits must be 5-8, got %d", ErrInvalidSettings, s.DataBits)
	case s.StopBits < 1 || s.StopBits > 2:
		return fmt.Errorf("%w: stop bits must be 1 or 2, got %d", ErrInvalidSettings, s.StopBits)
	case s.Parity > ParityOdd:
		return fmt.Errorf("%w: %s", ErrInvalidSettings, s.Parity)
	case s.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidSettings)
	}
	return nil
}

// String formats the settings as e.g. "115200 8N1 timeout=50ms".
func (s Settings) String() string {
	return fmt.Sprintf("%d %d%c%d timeout=%s",
		s.BaudRate, s.DataBits, strings.ToUpper(s.Parity.String())[0], s.StopBits, s.Timeout)
}

// Result describes one completed write+read exchange.
type Result struct {
	Port         string        `json:"port"`
	SlaveAddress uint8         `json:"slave_address"`
	Register     uint16        `json:"register"`
	Requested    uint16        `json:"requested"`
	Confirmed    uint16        `json:"confirmed"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Matched reports whether the device stored the requested value.
func (r *Result) Matched() bool {
	return r.Requested == r.Confirmed
}
