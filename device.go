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
	"fmt"
	"strings"

	"github.com/simonvetter/modbus"
	"go.bug.st/serial"
)

// Conn is an open session with one Modbus slave.
// *modbus.ModbusClient satisfies it.
type Conn interface {
	Open() error
	Close() error
	SetUnitId(id uint8) error
	WriteRegister(addr uint16, value uint16) error
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
}

// Dialer creates a Conn for the given client configuration. The returned
// Conn is not open yet.
type Dialer func(conf *modbus.ClientConfiguration) (Conn, error)

// DialModbus is the default Dialer.
func DialModbus(conf *modbus.ClientConfiguration) (Conn, error) {
	client, err := modbus.NewClient(conf)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Schemes understood by the modbus client.
var supportedSchemes = []string{
	"rtu",
	"rtuovertcp",
	"rtuoverudp",
	"tcp",
	"udp",
}

// DeviceURL turns a port name into a modbus client URL. Bare device names
// such as /dev/ttyUSB0 or COM3 are addressed over RTU.
func DeviceURL(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		return "", fmt.Errorf("%w: empty port", ErrUnsupportedScheme)
	}

	scheme, _, ok := strings.Cut(port, "://")
	if !ok {
		return "rtu://" + port, nil
	}
	for _, s := range supportedSchemes {
		if strings.EqualFold(scheme, s) {
			return strings.ToLower(scheme) + port[len(scheme):], nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
}

// isSerialURL reports whether url addresses a local serial device.
func isSerialURL(url string) bool {
	return strings.HasPrefix(url, "rtu://")
}

// availablePorts lists the serial ports of the host, or nil.
func availablePorts() []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil
	}
	return ports
}

func clientConfiguration(url string, s Settings) *modbus.ClientConfiguration {
	return &modbus.ClientConfiguration{
		URL:      url,
		Speed:    s.BaudRate,
		DataBits: s.DataBits,
		Parity:   uint(s.Parity),
		StopBits: s.StopBits,
		Timeout:  s.Timeout,
	}
}
