package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how CLI commands render API responses.
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

// outputFormat is set once by the root command's --output flag.
var outputFormat = OutputFormatYAML

// SetOutputFormat sets the process-wide output format. Unrecognized
// values fall back to YAML.
func SetOutputFormat(format string) {
	if OutputFormat(format) == OutputFormatJSON {
		outputFormat = OutputFormatJSON
		return
	}
	outputFormat = OutputFormatYAML
}

// Output renders data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, outputFormat, data)
}

// OutputTo renders data to w in the given format.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
