package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	serialno "github.com/edgeo-scada/setserial"
)

// envKeyReplacer maps flag names to env keys (data-bits -> SETSERIAL_DATA_BITS).
var envKeyReplacer = strings.NewReplacer("-", "_")

// cli holds the state of one invocation.
type cli struct {
	cfgFile string
	verbose bool

	v      *viper.Viper
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	cmd := &cobra.Command{
		Use:   "setserial <port> <slave_address> <value>",
		Short: "Store a serial number in a Modbus slave",
		Long: `setserial writes a value into holding register 2 (the serial number register)
of a Modbus slave over a serial line, reads it back and prints the value the
device confirmed.

The port is a serial device (/dev/ttyUSB0, COM3) or a Modbus URL
(rtu://, rtuovertcp://, rtuoverudp://, tcp://, udp://).

Transport defaults: 115200 baud, 8 data bits, no parity, 1 stop bit,
50ms read timeout.`,
		Example: `  setserial /dev/ttyUSB0 1 42
  setserial COM3 17 1024 -o json
  setserial rtuovertcp://10.0.0.5:4001 1 42 --timeout 200ms`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.initConfig(); err != nil {
				return err
			}

			level := slog.LevelInfo
			if c.verbose {
				level = slog.LevelDebug
			}
			c.logger = slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{
				Level: level,
			}))
			return nil
		},
		RunE: c.runSetSerial,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return serialno.NewError(serialno.KindUsage, "parse flags", err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: $HOME/.setserial.yaml)")

	// Transport flags
	flags.Uint("baud", serialno.DefaultBaudRate, "Serial speed in bps")
	flags.Uint("data-bits", serialno.DefaultDataBits, "Data bits per character")
	flags.String("parity", serialno.ParityNone.String(), "Parity: none, even, odd")
	flags.Uint("stop-bits", serialno.DefaultStopBits, "Stop bits")
	flags.Duration("timeout", serialno.DefaultTimeout, "Per-read transport timeout")

	// Output flags
	flags.StringP("output", "o", "text", "Output format: text, json")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Verbose output")

	for _, name := range []string{"baud", "data-bits", "parity", "stop-bits", "timeout", "output"} {
		c.v.BindPFlag(name, flags.Lookup(name))
	}

	return cmd
}

func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
		c.v.AddConfigPath(".")
		c.v.SetConfigName(".setserial")
		c.v.SetConfigType("yaml")
	}

	c.v.SetEnvPrefix("SETSERIAL")
	c.v.SetEnvKeyReplacer(envKeyReplacer)
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		// the default locations are optional, an explicit file is not
		if c.cfgFile != "" {
			return serialno.NewError(serialno.KindValue, "load config "+c.cfgFile, err)
		}
		return nil
	}
	if c.verbose {
		fmt.Fprintln(c.stderr, "Using config file:", c.v.ConfigFileUsed())
	}
	return nil
}

// settings builds the transport settings from flags, env and config file.
func (c *cli) settings() (serialno.Settings, error) {
	parity, err := serialno.ParseParity(c.v.GetString("parity"))
	if err != nil {
		return serialno.Settings{}, err
	}
	s := serialno.Settings{
		BaudRate: c.v.GetUint("baud"),
		DataBits: c.v.GetUint("data-bits"),
		Parity:   parity,
		StopBits: c.v.GetUint("stop-bits"),
		Timeout:  c.v.GetDuration("timeout"),
	}
	return s, s.Validate()
}

func (c *cli) runSetSerial(cmd *cobra.Command, args []string) error {
	if len(args) < 3 {
		fmt.Fprintf(c.stdout, "usage: %s <port> <slave_address> <value>\n", cmd.Root().Name())
		return serialno.NewError(serialno.KindUsage, "", serialno.ErrUsage)
	}
	if len(args) > 3 {
		c.logger.Warn("ignoring extra arguments", slog.Any("args", args[3:]))
	}

	port := args[0]
	slave, err := parseInt("slave address", args[1])
	if err != nil {
		return err
	}
	value, err := parseInt("value", args[2])
	if err != nil {
		return err
	}

	format := c.v.GetString("output")
	if format != "text" && format != "json" {
		return serialno.NewError(serialno.KindUsage, "", fmt.Errorf("unknown output format %q", format))
	}

	settings, err := c.settings()
	if err != nil {
		return serialno.NewError(serialno.KindValue, "load settings", err)
	}

	w := serialno.NewWriter(
		serialno.WithSettings(settings),
		serialno.WithLogger(c.logger),
	)

	start := time.Now()
	res, err := w.SetSerialNumber(cmd.Context(), port, slave, value)
	if c.verbose {
		c.logger.Debug("exchange finished",
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("metrics", w.Metrics().Collect()))
	}
	if err != nil {
		return err
	}

	return outputResult(c.stdout, format, res)
}

// parseInt parses a decimal command line integer.
func parseInt(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, serialno.NewError(serialno.KindValue, "parse "+name, fmt.Errorf("%q: %w", s, err))
	}
	return n, nil
}

// positionalLast reorders args so that flags come first and every positional
// argument follows a "--" terminator. Negative numbers such as -5 are then
// handed to the command as arguments instead of being parsed as shorthand
// flags.
func positionalLast(fs *pflag.FlagSet, args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			positional = append(positional, args[i+1:]...)
			i = len(args)
		case a == "-" || !strings.HasPrefix(a, "-") || isNumber(a):
			positional = append(positional, a)
		default:
			flags = append(flags, a)
			if flagTakesValue(fs, a) && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		}
	}
	return append(append(flags, "--"), positional...)
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// flagTakesValue reports whether the flag token a consumes the next argument.
func flagTakesValue(fs *pflag.FlagSet, a string) bool {
	if strings.Contains(a, "=") {
		return false
	}
	if name, ok := strings.CutPrefix(a, "--"); ok {
		f := fs.Lookup(name)
		return f != nil && f.NoOptDefVal == ""
	}
	// shorthand group such as -v or -vo
	for j := 1; j < len(a); j++ {
		f := fs.ShorthandLookup(a[j : j+1])
		if f == nil {
			return false
		}
		if f.NoOptDefVal == "" {
			return j == len(a)-1
		}
	}
	return false
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(positionalLast(cmd.PersistentFlags(), args))

	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, serialno.ErrUsage) {
		outputError(stderr, err)
	}
	return serialno.ExitCode(err)
}
