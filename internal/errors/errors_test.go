package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := New(ProcessFailed, "language server exited", cause)

	if err.Code != ProcessFailed {
		t.Errorf("Code = %v, want %v", err.Code, ProcessFailed)
	}
	if err.Message != "language server exited" {
		t.Errorf("Message = %q, want 'language server exited'", err.Message)
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name  string
		err   *EngineError
		wants []string
	}{
		{
			name:  "without cause",
			err:   New(Timeout, "definition request timed out", nil),
			wants: []string{"[TIMEOUT]", "definition request timed out"},
		},
		{
			name:  "with cause",
			err:   New(ProtocolError, "bad frame", fmt.Errorf("missing Content-Length")),
			wants: []string{"[PROTOCOL_ERROR]", "bad frame", "missing Content-Length"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.wants {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, want to contain %q", got, want)
				}
			}
		})
	}
}

func TestUnwrapWithErrorsIs(t *testing.T) {
	cause := fmt.Errorf("pipe closed")
	err := New(ProcessFailed, "read loop stopped", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestUnwrapNil(t *testing.T) {
	err := New(StorageError, "insert failed", nil)
	if err.Unwrap() != nil {
		t.Error("Unwrap() should return nil when there is no cause")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(AmbiguousReference, "multiple candidates", nil).
		WithDetails(map[string]interface{}{"name": "process", "count": 2})

	details, ok := err.Details.(map[string]interface{})
	if !ok {
		t.Fatal("Details should be a map")
	}
	if details["name"] != "process" {
		t.Errorf("details.name = %v, want 'process'", details["name"])
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		wantFixes bool
	}{
		{"semantic unavailable has fixes", SemanticUnavailable, true},
		{"process failed has fixes", ProcessFailed, true},
		{"invalid config has fixes", InvalidConfig, true},
		{"timeout has no fixes", Timeout, false},
		{"internal error has no fixes", InternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixes := GetSuggestedFixes(tt.code)
			if tt.wantFixes && len(fixes) == 0 {
				t.Errorf("GetSuggestedFixes(%s) returned none, want at least one", tt.code)
			}
			if !tt.wantFixes && len(fixes) != 0 {
				t.Errorf("GetSuggestedFixes(%s) returned %d, want none", tt.code, len(fixes))
			}
		})
	}
}

func TestNewAttachesSuggestedFixes(t *testing.T) {
	err := New(SemanticUnavailable, "no language server", nil)

	if len(err.SuggestedFixes) == 0 {
		t.Fatal("SemanticUnavailable errors should carry suggested fixes")
	}
	if err.SuggestedFixes[0].Type != InstallTool {
		t.Errorf("fix type = %v, want %v", err.SuggestedFixes[0].Type, InstallTool)
	}
}

func TestErrorCodesAreDistinct(t *testing.T) {
	codes := []ErrorCode{
		SemanticUnavailable, ProcessFailed, ProtocolError, Timeout,
		AmbiguousReference, ExternalReference, ParseFailed,
		StorageError, InvalidConfig, InternalError,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if code == "" {
			t.Error("error code should not be empty")
		}
		if seen[code] {
			t.Errorf("duplicate error code %q", code)
		}
		seen[code] = true
	}
}
