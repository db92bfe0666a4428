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
	"io"
	"net"
	"strings"
	"testing"

	"github.com/simonvetter/modbus"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindUsage, "usage error"},
		{KindValue, "value error"},
		{KindTransport, "transport error"},
		{KindProtocol, "protocol error"},
		{KindUnknown, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if tt.kind.String() != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tt.kind.String())
			}
		})
	}
}

func TestError(t *testing.T) {
	err := NewError(KindValue, "validate value", ErrValueOutOfRange)

	if !errors.Is(err, ErrValueOutOfRange) {
		t.Error("Error should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "validate value") {
		t.Errorf("Error string should name the operation, got %q", err.Error())
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != KindValue {
		t.Errorf("KindOf: expected %v, got %v", KindValue, KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf should return KindUnknown for foreign errors")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, 0},
		{"usage", NewError(KindUsage, "", ErrUsage), 1},
		{"value", NewError(KindValue, "", ErrInvalidSlaveAddress), 2},
		{"transport", NewError(KindTransport, "", io.EOF), 3},
		{"protocol", NewError(KindProtocol, "", ErrTimeout), 4},
		{"unknown", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.code {
				t.Errorf("ExitCode: expected %d, got %d", tt.code, got)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(modbus.ErrRequestTimedOut) {
		t.Error("ErrRequestTimedOut should be a timeout")
	}
	if !IsTimeout(fmt.Errorf("read: %w", timeoutErr{})) {
		t.Error("net.Error with Timeout() should be a timeout")
	}
	if IsTimeout(modbus.ErrBadCRC) {
		t.Error("ErrBadCRC should not be a timeout")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		failKind Kind
		want     Kind
		is       error
	}{
		{"timeout", modbus.ErrRequestTimedOut, KindTransport, KindProtocol, ErrTimeout},
		{"net timeout", timeoutErr{}, KindTransport, KindProtocol, ErrTimeout},
		{"bad crc", modbus.ErrBadCRC, KindTransport, KindProtocol, modbus.ErrBadCRC},
		{"short frame", modbus.ErrShortFrame, KindTransport, KindProtocol, modbus.ErrShortFrame},
		{"exception", modbus.ErrIllegalDataValue, KindTransport, KindProtocol, modbus.ErrIllegalDataValue},
		{"configuration", modbus.ErrConfigurationError, KindTransport, KindValue, modbus.ErrConfigurationError},
		{"io", io.ErrUnexpectedEOF, KindTransport, KindTransport, io.ErrUnexpectedEOF},
		{"already classified", NewError(KindUsage, "", ErrUsage), KindTransport, KindUsage, ErrUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.failKind, tt.err)
			if KindOf(err) != tt.want {
				t.Errorf("kind: expected %v, got %v (%v)", tt.want, KindOf(err), err)
			}
			if !errors.Is(err, tt.is) {
				t.Errorf("expected %v in chain of %v", tt.is, err)
			}
		})
	}

	if classify("op", KindTransport, nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}
