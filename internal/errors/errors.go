// Package errors defines stable error codes for every failure mode of the
// resolution engine. Nothing here is fatal to a scan: the worst outcome any
// of these codes describes is "no semantic enrichment, lazy links only".
package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// SemanticUnavailable indicates the language server could not be started
	// or is not configured; resolution falls back to the lazy linker
	SemanticUnavailable ErrorCode = "SEMANTIC_UNAVAILABLE"
	// ProcessFailed indicates the language server process exited or closed
	// its pipes mid-scan
	ProcessFailed ErrorCode = "PROCESS_FAILED"
	// ProtocolError indicates a malformed frame or body on the wire
	ProtocolError ErrorCode = "PROTOCOL_ERROR"
	// Timeout indicates a single request exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// AmbiguousReference indicates multiple lazy-link candidates at the
	// same scope; the relation is deliberately left unresolved
	AmbiguousReference ErrorCode = "AMBIGUOUS_REFERENCE"
	// ExternalReference indicates a name with no candidate anywhere in the
	// scanned tree; expected for references outside the tree
	ExternalReference ErrorCode = "EXTERNAL_REFERENCE"
	// ParseFailed indicates the syntax extractor could not parse a file
	ParseFailed ErrorCode = "PARSE_FAILED"
	// StorageError indicates a graph store read or write failed
	StorageError ErrorCode = "STORAGE_ERROR"
	// InvalidConfig indicates the configuration file is malformed
	InvalidConfig ErrorCode = "INVALID_CONFIG"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// InstallTool suggests installing a tool
	InstallTool FixActionType = "install-tool"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	Tool        string        `json:"tool,omitempty"`
}

// EngineError represents a resolution engine error with code and message
type EngineError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new EngineError
func New(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *EngineError) WithDetails(details interface{}) *EngineError {
	e.Details = details
	return e
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	SemanticUnavailable: {
		{
			Type:        InstallTool,
			Tool:        "pyright",
			Description: "Install a language server and configure semantic.command",
		},
	},
	ProcessFailed: {
		{
			Type:        RunCommand,
			Command:     "codegraph scan --no-semantic",
			Safe:        true,
			Description: "Rerun the scan with name-based linking only",
		},
	},
	InvalidConfig: {
		{
			Type:        RunCommand,
			Command:     "codegraph init --force",
			Safe:        false,
			Description: "Regenerate a default configuration file",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
