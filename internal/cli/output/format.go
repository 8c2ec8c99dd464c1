// Package output renders command results for the querysync CLI
// (fetch, status, config) in the format its --output flag selects:
// a human-readable table by default, or json/yaml for scripting.
package output

import (
	"fmt"
	"strings"
)

// Format is one of the querysync CLI's --output flag values.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses --output's value, defaulting an empty string to
// FormatTable and accepting "yml" as a FormatYAML alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("cli/output: invalid --output value %q (want table, json, or yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}
