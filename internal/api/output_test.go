package api

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputTo(t *testing.T) {
	data := map[string]string{"queue": "panel"}

	var buf bytes.Buffer
	if err := OutputTo(&buf, OutputFormatJSON, data); err != nil {
		t.Fatalf("OutputTo(json) error = %v", err)
	}
	if !strings.Contains(buf.String(), `"queue": "panel"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	if err := OutputTo(&buf, OutputFormatYAML, data); err != nil {
		t.Fatalf("OutputTo(yaml) error = %v", err)
	}
	if !strings.Contains(buf.String(), "queue: panel") {
		t.Errorf("yaml output = %q", buf.String())
	}

	if err := OutputTo(&buf, OutputFormat("csv"), data); err == nil {
		t.Error("unknown format should error")
	}
}

func TestSetOutputFormatFallsBackToYAML(t *testing.T) {
	t.Cleanup(func() { SetOutputFormat("yaml") })

	SetOutputFormat("json")
	if outputFormat != OutputFormatJSON {
		t.Errorf("outputFormat = %s, want json", outputFormat)
	}

	SetOutputFormat("csv")
	if outputFormat != OutputFormatYAML {
		t.Errorf("outputFormat = %s, want yaml fallback", outputFormat)
	}
}
