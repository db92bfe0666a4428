package main

import (
	"encoding/json"
	"fmt"
	"io"

	serialno "github.com/edgeo-scada/setserial"
)

// resultJSON is the json output shape.
type resultJSON struct {
	Port         string `json:"port"`
	SlaveAddress uint8  `json:"slave_address"`
	Register     uint16 `json:"register"`
	Requested    uint16 `json:"requested"`
	Confirmed    uint16 `json:"confirmed"`
	Matched      bool   `json:"matched"`
	Elapsed      string `json:"elapsed"`
}

func outputResult(w io.Writer, format string, res *serialno.Result) error {
	switch format {
	case "json":
		return outputResultJSON(w, res)
	default:
		return outputResultText(w, res)
	}
}

func outputResultText(w io.Writer, res *serialno.Result) error {
	_, err := fmt.Fprintf(w, "update register with value: %d\n", res.Confirmed)
	return err
}

func outputResultJSON(w io.Writer, res *serialno.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resultJSON{
		Port:         res.Port,
		SlaveAddress: res.SlaveAddress,
		Register:     res.Register,
		Requested:    res.Requested,
		Confirmed:    res.Confirmed,
		Matched:      res.Matched(),
		Elapsed:      res.Elapsed.String(),
	})
}

func outputError(w io.Writer, err error) {
	fmt.Fprintln(w, "ERROR", err)
}
