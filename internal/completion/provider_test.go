package completion

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	apiErr := &APIError{Type: ErrorTypeUnauthorized, Status: 401, Provider: "anthropic", Message: "bad key"}

	if got := Classify(apiErr); got != ErrorTypeUnauthorized {
		t.Errorf("Classify(APIError) = %s, want %s", got, ErrorTypeUnauthorized)
	}

	wrapped := fmt.Errorf("phase failed: %w", apiErr)
	if got := Classify(wrapped); got != ErrorTypeUnauthorized {
		t.Errorf("Classify(wrapped) = %s, want %s", got, ErrorTypeUnauthorized)
	}

	if got := Classify(errors.New("plain error")); got != ErrorTypeAPI {
		t.Errorf("Classify(plain) = %s, want %s", got, ErrorTypeAPI)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{401, ErrorTypeUnauthorized},
		{403, ErrorTypeUnauthorized},
		{429, ErrorTypeRateLimited},
		{503, ErrorTypeOverloaded},
		{529, ErrorTypeOverloaded},
		{400, ErrorTypeAPI},
		{500, ErrorTypeAPI},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestDocumentBlockPaginated(t *testing.T) {
	pdf := DocumentBlock{Name: "a.pdf", MediaType: "application/pdf"}
	if !pdf.Paginated() {
		t.Error("PDF block should be paginated")
	}

	txt := DocumentBlock{Name: "a.txt", MediaType: "text/plain"}
	if txt.Paginated() {
		t.Error("text block should not be paginated")
	}
}
