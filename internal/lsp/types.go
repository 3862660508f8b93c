package lsp

import (
	"encoding/json"
)

// ClientState represents the state of the semantic client connection
type ClientState string

const (
	// StateStopped indicates no child process exists
	StateStopped ClientState = "stopped"
	// StateStarting indicates the child process is being spawned
	StateStarting ClientState = "starting"
	// StateAwaitingCapabilities indicates initialize was sent and the
	// capability response is pending
	StateAwaitingCapabilities ClientState = "awaiting_capabilities"
	// StateReady indicates the client can serve queries
	StateReady ClientState = "ready"
	// StateShuttingDown indicates a graceful shutdown is in progress
	StateShuttingDown ClientState = "shutting_down"
	// StateFailed is terminal: the semantic layer is unavailable for the
	// remainder of the scan
	StateFailed ClientState = "failed"
)

// Location represents a source code location returned by the server.
// Line and Character are 0-based.
type Location struct {
	URI       string
	Line      int
	Character int
}

// parseDefinitionResult parses a textDocument/definition result, which may
// be null, a single Location, an array of Locations, or an array of
// LocationLinks. The first match wins; anything unrecognizable yields nil.
func parseDefinitionResult(raw json.RawMessage) *Location {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return nil
		}
		raw = arr[0]
	}

	var loc struct {
		URI   string `json:"uri"`
		Range struct {
			Start struct {
				Line      int `json:"line"`
				Character int `json:"character"`
			} `json:"start"`
		} `json:"range"`
	}
	if err := json.Unmarshal(raw, &loc); err == nil && loc.URI != "" {
		return &Location{URI: loc.URI, Line: loc.Range.Start.Line, Character: loc.Range.Start.Character}
	}

	// LocationLink form
	var link struct {
		TargetURI   string `json:"targetUri"`
		TargetRange struct {
			Start struct {
				Line      int `json:"line"`
				Character int `json:"character"`
			} `json:"start"`
		} `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(raw, &link); err == nil && link.TargetURI != "" {
		return &Location{URI: link.TargetURI, Line: link.TargetRange.Start.Line, Character: link.TargetRange.Start.Character}
	}

	return nil
}

// parseHoverResult parses a textDocument/hover result into a signature
// string. Contents may be a bare string, a MarkupContent object, or an
// array of either.
func parseHoverResult(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var hover struct {
		Contents json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(raw, &hover); err != nil || len(hover.Contents) == 0 {
		return ""
	}

	return parseHoverContents(hover.Contents)
}

func parseHoverContents(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var markup struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &markup); err == nil && markup.Value != "" {
		return markup.Value
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return parseHoverContents(arr[0])
	}

	return ""
}
