package output

import (
	"encoding/json"
	"io"
)

// PrintJSON writes data as indented JSON, the shape `-o json` uses for
// fetch and status results.
func PrintJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintJSONCompact writes data as single-line JSON, for callers piping
// querysync's output into another tool rather than reading it directly.
func PrintJSONCompact(w io.Writer, data any) error {
	return json.NewEncoder(w).Encode(data)
}
