// Package main provides setserial, a tool that stores a serial number in a
// Modbus slave over a serial line.
package main

import (
	"os"
)

var version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
