package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/edgeo-scada/setserial/internal/simulator"
)

func startDevice(t *testing.T, opts ...simulator.Option) (string, *simulator.Device) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	url := "tcp://" + l.Addr().String()
	l.Close()

	opts = append(opts, simulator.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	dev := simulator.NewDevice(opts...)
	server, err := simulator.Serve(url, dev)
	if err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	return url, dev
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"COM3"}, {"COM3", "1"}} {
		code, stdout, stderr := runCLI(args...)
		if code != 1 {
			t.Errorf("%v: exit code: expected 1, got %d", args, code)
		}
		if stdout != "usage: setserial <port> <slave_address> <value>\n" {
			t.Errorf("%v: unexpected stdout %q", args, stdout)
		}
		if stderr != "" {
			t.Errorf("%v: unexpected stderr %q", args, stderr)
		}
	}
}

func TestRun_Success(t *testing.T) {
	url, dev := startDevice(t)

	code, stdout, stderr := runCLI(url, "1", "42", "--timeout", "1s")
	if code != 0 {
		t.Fatalf("exit code: expected 0, got %d (stderr %q)", code, stderr)
	}
	if stdout != "update register with value: 42\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}
	if got := dev.HoldingRegister(1, 2); got != 42 {
		t.Errorf("device register 2: expected 42, got %d", got)
	}
}

func TestRun_ReportsDeviceValue(t *testing.T) {
	url, _ := startDevice(t, simulator.WithClamp(10))

	code, stdout, stderr := runCLI(url, "3", "42", "--timeout", "1s")
	if code != 0 {
		t.Fatalf("exit code: expected 0, got %d (stderr %q)", code, stderr)
	}
	if stdout != "update register with value: 10\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}
	if !strings.Contains(stderr, "different value") {
		t.Errorf("expected a mismatch warning, got %q", stderr)
	}
}

func TestRun_JSON(t *testing.T) {
	url, _ := startDevice(t)

	code, stdout, stderr := runCLI(url, "7", "1234", "--timeout", "1s", "-o", "json")
	if code != 0 {
		t.Fatalf("exit code: expected 0, got %d (stderr %q)", code, stderr)
	}

	var res resultJSON
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("invalid json %q: %v", stdout, err)
	}
	if res.SlaveAddress != 7 || res.Register != 2 || res.Requested != 1234 || res.Confirmed != 1234 || !res.Matched {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		code   int
		stderr string
	}{
		{"non-integer slave", []string{"COM3", "one", "42"}, 2, "parse slave address"},
		{"non-integer value", []string{"COM3", "1", "4.2"}, 2, "parse value"},
		{"slave out of range", []string{"COM3", "300", "42"}, 2, "invalid slave address"},
		{"value out of range", []string{"COM3", "1", "70000"}, 2, "value out of range"},
		{"negative value", []string{"COM3", "1", "-5"}, 2, "value out of range"},
		{"negative slave", []string{"COM3", "-1", "42"}, 2, "invalid slave address"},
		{"negative value after flag", []string{"--timeout", "1s", "COM3", "1", "-5"}, 2, "value out of range"},
		{"bad parity", []string{"COM3", "1", "42", "--parity", "mark"}, 2, "unknown parity"},
		{"bad output", []string{"COM3", "1", "42", "-o", "xml"}, 1, "unknown output format"},
		{"unknown flag", []string{"COM3", "1", "42", "--baudrate", "9600"}, 1, "unknown flag"},
		{"missing config file", []string{"COM3", "1", "42", "--config", "/nonexistent/setserial.yaml"}, 2, "load config"},
		{"missing port", []string{"/dev/setserial-does-not-exist", "1", "42"}, 3, "transport error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(tt.args...)
			if code != tt.code {
				t.Errorf("exit code: expected %d, got %d (stderr %q)", tt.code, code, stderr)
			}
			if stdout != "" {
				t.Errorf("stdout should be empty, got %q", stdout)
			}
			if !strings.Contains(stderr, tt.stderr) {
				t.Errorf("stderr should contain %q, got %q", tt.stderr, stderr)
			}
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	url, _ := startDevice(t, simulator.WithResponseDelay(300*time.Millisecond))

	code, stdout, stderr := runCLI(url, "1", "42")
	if code != 4 {
		t.Errorf("exit code: expected 4, got %d (stderr %q)", code, stderr)
	}
	if strings.Contains(stdout, "update register") {
		t.Errorf("no result should be printed, got %q", stdout)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "setserial.yaml")
	if err := os.WriteFile(cfg, []byte("parity: mark\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI("COM3", "1", "42", "--config", cfg)
	if code != 2 {
		t.Errorf("exit code: expected 2, got %d (stderr %q)", code, stderr)
	}
	if !strings.Contains(stderr, "unknown parity") {
		t.Errorf("settings from the config file should be applied, got %q", stderr)
	}
}

func TestPositionalLast(t *testing.T) {
	flags := newRootCmd(io.Discard, io.Discard).PersistentFlags()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"empty", []string{}, []string{"--"}},
		{"positional only", []string{"COM3", "1", "42"}, []string{"--", "COM3", "1", "42"}},
		{"negative numbers", []string{"COM3", "-1", "-5"}, []string{"--", "COM3", "-1", "-5"}},
		{"flag with value", []string{"COM3", "--timeout", "1s", "1", "-5"}, []string{"--timeout", "1s", "--", "COM3", "1", "-5"}},
		{"flag with inline value", []string{"--baud=9600", "COM3", "1", "42"}, []string{"--baud=9600", "--", "COM3", "1", "42"}},
		{"bool flag", []string{"-v", "COM3", "1", "42"}, []string{"-v", "--", "COM3", "1", "42"}},
		{"shorthand group", []string{"-vo", "json", "COM3", "1", "42"}, []string{"-vo", "json", "--", "COM3", "1", "42"}},
		{"negative flag value", []string{"--baud", "-1", "COM3", "1", "42"}, []string{"--baud", "-1", "--", "COM3", "1", "42"}},
		{"explicit terminator", []string{"-o", "json", "--", "COM3", "-v", "42"}, []string{"-o", "json", "--", "COM3", "-v", "42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := positionalLast(flags, tt.args)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
