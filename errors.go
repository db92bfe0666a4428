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
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/simonvetter/modbus"
)

// Kind classifies a failure for the operator.
type Kind uint8

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindUsage
	KindValue
	KindTransport
	KindProtocol
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage error"
	case KindValue:
		return "value error"
	case KindTransport:
		return "transport error"
	case KindProtocol:
		return "protocol error"
	default:
		return "error"
	}
}

// Error is returned by every Writer operation that fails.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("setserial: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("setserial: %s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Common errors.
var (
	// ErrUsage indicates the command line was incomplete.
	ErrUsage = errors.New("setserial: missing arguments")

	// ErrInvalidSlaveAddress indicates a slave address outside 0-247.
	ErrInvalidSlaveAddress = errors.New("setserial: invalid slave address")

	// ErrValueOutOfRange indicates a value that does not fit a 16-bit register.
	ErrValueOutOfRange = errors.New("setserial: value out of range")

	// ErrUnsupportedScheme indicates a port URL with an unknown scheme.
	ErrUnsupportedScheme = errors.New("setserial: unsupported port scheme")

	// ErrInvalidSettings indicates unusable transport settings.
	ErrInvalidSettings = errors.New("setserial: invalid transport settings")

	// ErrTimeout indicates the device did not answer within the transport timeout.
	ErrTimeout = errors.New("setserial: timeout")
)

// NewError wraps err with a kind and the operation that failed.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindValue:
		return 2
	case KindTransport:
		return 3
	case KindProtocol:
		return 4
	default:
		return 1
	}
}

// IsTimeout checks if err is a transport timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, modbus.ErrRequestTimedOut) || os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classify wraps an error returned by the modbus client for op. failKind is
// used for anything not recognised as a protocol failure.
func classify(op string, failKind Kind, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	if IsTimeout(err) {
		if !errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return NewError(KindProtocol, op, err)
	}

	var mbErr modbus.Error
	if errors.As(err, &mbErr) {
		if mbErr == modbus.ErrConfigurationError {
			return NewError(KindValue, op, err)
		}
		// bad crc, short frame, unexpected unit id and exception responses
		return NewError(KindProtocol, op, err)
	}

	return NewError(failKind, op, err)
}
