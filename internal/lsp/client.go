// Package lsp implements the semantic client: a JSON-RPC connection to a
// language server child process used to upgrade name-based links into
// verified ones. Every failure mode here degrades to "no result"; nothing
// in this package is fatal to a scan.
package lsp

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"codegraph/internal/errors"
	"codegraph/internal/logging"
)

// DefaultRequestTimeout bounds a single definition/hover query
const DefaultRequestTimeout = 5 * time.Second

// DefaultStartTimeout bounds the initialize handshake
const DefaultStartTimeout = 15 * time.Second

// DefaultMaxMalformed is how many consecutive undecodable frames the read
// loop tolerates before declaring the connection broken
const DefaultMaxMalformed = 5

// SpawnFunc produces the transport to the semantic server. Production uses
// SpawnProcess; tests supply an in-memory fake.
type SpawnFunc func() (Transport, error)

// Options configures a Client
type Options struct {
	WorkspaceRoot  string
	LanguageID     string
	RequestTimeout time.Duration
	StartTimeout   time.Duration
	MaxMalformed   int
	Spawn          SpawnFunc
	Logger         *logging.Logger
}

// Client manages one semantic server connection per scan. A single
// background read loop demultiplexes responses by request id, so multiple
// resolution workers may have requests outstanding concurrently.
type Client struct {
	workspaceRoot  string
	languageID     string
	requestTimeout time.Duration
	startTimeout   time.Duration
	maxMalformed   int
	spawn          SpawnFunc
	logger         *logging.Logger

	// mu guards state, pending, and nextId — the single point of
	// serialized access for the dispatch table and the id counter
	mu      sync.Mutex
	state   ClientState
	pending map[int]chan *rpcMessage
	nextId  int

	// writeMu serializes frame writes to the transport
	writeMu   sync.Mutex
	transport Transport

	capabilities json.RawMessage

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewClient creates a semantic client in the Stopped state
func NewClient(opts Options) *Client {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.MaxMalformed == 0 {
		opts.MaxMalformed = DefaultMaxMalformed
	}

	return &Client{
		workspaceRoot:  opts.WorkspaceRoot,
		languageID:     opts.LanguageID,
		requestTimeout: opts.RequestTimeout,
		startTimeout:   opts.StartTimeout,
		maxMalformed:   opts.MaxMalformed,
		spawn:          opts.Spawn,
		logger:         opts.Logger,
		state:          StateStopped,
		pending:        make(map[int]chan *rpcMessage),
		nextId:         1,
		done:           make(chan struct{}),
	}
}

// State returns the current connection state
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the client can serve queries
func (c *Client) Ready() bool {
	return c.State() == StateReady
}

// Capabilities returns the raw capability data from the initialize response
func (c *Client) Capabilities() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// Start spawns the server, runs the initialize handshake, and transitions
// to Ready. Any failure lands in the terminal Failed state and the caller
// must fall back to lazy linking — never abort the scan.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.state != StateStopped {
		state := c.state
		c.mu.Unlock()
		return errors.New(errors.SemanticUnavailable,
			fmt.Sprintf("client cannot start from state %q", state), nil)
	}
	c.state = StateStarting
	c.mu.Unlock()

	transport, err := c.spawn()
	if err != nil {
		c.fail("spawn failed", err)
		return errors.New(errors.SemanticUnavailable, "failed to spawn semantic server", err)
	}

	c.writeMu.Lock()
	c.transport = transport
	c.writeMu.Unlock()

	c.setState(StateAwaitingCapabilities)

	c.wg.Add(1)
	go c.readLoop(transport)

	result, err := c.sendRequest("initialize", c.initializeParams(), c.startTimeout)
	if err != nil {
		c.fail("initialize failed", err)
		return errors.New(errors.SemanticUnavailable, "semantic server initialize failed", err)
	}

	var initResult struct {
		Capabilities json.RawMessage `json:"capabilities"`
	}
	if jsonErr := json.Unmarshal(result, &initResult); jsonErr != nil || len(initResult.Capabilities) == 0 {
		c.fail("initialize response carried no capabilities", jsonErr)
		return errors.New(errors.SemanticUnavailable, "semantic server returned no capabilities", jsonErr)
	}

	c.mu.Lock()
	c.capabilities = initResult.Capabilities
	c.mu.Unlock()

	if err := c.sendNotification("initialized", map[string]interface{}{}); err != nil {
		c.fail("initialized notification failed", err)
		return errors.New(errors.SemanticUnavailable, "initialized notification failed", err)
	}

	c.setState(StateReady)
	if c.logger != nil {
		c.logger.Info("Semantic server ready", map[string]interface{}{
			"workspace": c.workspaceRoot,
			"language":  c.languageID,
		})
	}

	return nil
}

func (c *Client) initializeParams() map[string]interface{} {
	return map[string]interface{}{
		"processId": nil,
		"rootUri":   "file://" + c.workspaceRoot,
		"capabilities": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"definition": map[string]interface{}{
					"linkSupport": true,
				},
				"hover": map[string]interface{}{},
			},
		},
	}
}

// Definition queries the server for the definition of the symbol at the
// given 0-based position. A missing result, a timeout, or a malformed
// response all uniformly yield nil.
func (c *Client) Definition(fileURI string, line, character int) *Location {
	result, err := c.sendRequest("textDocument/definition",
		positionParams(fileURI, line, character), c.requestTimeout)
	if err != nil {
		return nil
	}
	return parseDefinitionResult(result)
}

// Hover queries the server for a signature at the given position. Used
// only to enrich metadata; an empty string is never an error.
func (c *Client) Hover(fileURI string, line, character int) string {
	result, err := c.sendRequest("textDocument/hover",
		positionParams(fileURI, line, character), c.requestTimeout)
	if err != nil {
		return ""
	}
	return parseHoverResult(result)
}

// OpenDocument announces a document to the server. Queries against a file
// must be preceded by opening it.
func (c *Client) OpenDocument(fileURI, content string) error {
	return c.sendNotification("textDocument/didOpen", map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri":        fileURI,
			"languageId": c.languageID,
			"version":    1,
			"text":       content,
		},
	})
}

// Shutdown performs the shutdown/exit handshake and terminates the child
// process. Idempotent, and safe to call on an already-failed client.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	switch c.state {
	case StateStopped, StateFailed, StateShuttingDown:
		c.mu.Unlock()
		return nil
	}
	c.state = StateShuttingDown
	c.mu.Unlock()

	// Best-effort handshake; the server may already be gone
	_, _ = c.sendRequest("shutdown", nil, 2*time.Second)
	_ = c.sendNotification("exit", nil)

	c.doneOnce.Do(func() { close(c.done) })

	c.writeMu.Lock()
	transport := c.transport
	c.writeMu.Unlock()
	if transport != nil {
		_ = transport.Close()
	}

	c.wg.Wait()

	c.mu.Lock()
	c.state = StateStopped
	c.failPendingLocked()
	c.mu.Unlock()

	return nil
}

func positionParams(fileURI string, line, character int) map[string]interface{} {
	return map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri": fileURI,
		},
		"position": map[string]interface{}{
			"line":      line,
			"character": character,
		},
	}
}

// sendRequest sends a request and blocks until its response, its timeout,
// or connection failure. A timeout abandons only this request: the read
// loop keeps running and unrelated queries are unaffected.
func (c *Client) sendRequest(method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	switch c.state {
	case StateAwaitingCapabilities, StateReady, StateShuttingDown:
		// sendable states
	default:
		state := c.state
		c.mu.Unlock()
		return nil, errors.New(errors.SemanticUnavailable,
			fmt.Sprintf("client not ready (state %q)", state), nil)
	}
	id := c.nextId
	c.nextId++
	respChan := make(chan *rpcMessage, 1)
	c.pending[id] = respChan
	c.mu.Unlock()

	msg := &rpcMessage{
		Jsonrpc: "2.0",
		Id:      &id,
		Method:  method,
		Params:  params,
	}

	if err := c.writeMessage(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, errors.New(errors.ProcessFailed, "failed to send request", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok || resp == nil {
			return nil, errors.New(errors.ProcessFailed, "connection failed while awaiting response", nil)
		}
		if resp.Error != nil {
			return nil, errors.New(errors.ProtocolError,
				fmt.Sprintf("server error [%d]: %s", resp.Error.Code, resp.Error.Message), nil)
		}
		return resp.Result, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, errors.New(errors.Timeout, fmt.Sprintf("request %q timed out", method), nil)
	case <-c.done:
		return nil, errors.New(errors.ProcessFailed, "client shut down", nil)
	}
}

// sendNotification sends a message with no id; no response is expected
func (c *Client) sendNotification(method string, params interface{}) error {
	return c.writeMessage(&rpcMessage{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
	})
}

func (c *Client) writeMessage(msg *rpcMessage) error {
	frame, err := encodeFrame(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.transport == nil {
		return fmt.Errorf("transport not available")
	}
	_, err = c.transport.Write(frame)
	return err
}

// readLoop continuously decodes frames from the server. Malformed frames
// are dropped and counted; too many in a row, or a closed pipe, fail the
// connection and resolve every pending request as "no result".
func (c *Client) readLoop(transport Transport) {
	defer c.wg.Done()

	reader := bufio.NewReader(transport)
	malformed := 0

	for {
		select {
		case <-c.done:
			return
		default:
		}

		body, err := readFrame(reader)
		if err != nil {
			if err == io.EOF || isClosedErr(err) {
				c.fail("semantic server closed its pipes", err)
				return
			}
			malformed++
			if c.logger != nil {
				c.logger.Warn("Dropping malformed frame", map[string]interface{}{
					"error":       err.Error(),
					"consecutive": malformed,
				})
			}
			if malformed >= c.maxMalformed {
				c.fail("too many consecutive malformed frames", err)
				return
			}
			continue
		}

		msg, err := decodeBody(body)
		if err != nil {
			malformed++
			if malformed >= c.maxMalformed {
				c.fail("too many consecutive malformed frames", err)
				return
			}
			continue
		}
		malformed = 0

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *rpcMessage) {
	if msg.isResponse() {
		c.mu.Lock()
		respChan, ok := c.pending[*msg.Id]
		if ok {
			delete(c.pending, *msg.Id)
		}
		c.mu.Unlock()

		if ok {
			respChan <- msg
		}
		return
	}

	if msg.Method == "" {
		return
	}

	// Server-initiated traffic. Notifications are discarded; requests get
	// an empty response so the server does not stall.
	if msg.Id != nil {
		_ = c.writeMessage(&rpcMessage{
			Jsonrpc: "2.0",
			Id:      msg.Id,
			Result:  json.RawMessage("null"),
		})
		return
	}

	if c.logger != nil {
		c.logger.Debug("Discarding server notification", map[string]interface{}{
			"method": msg.Method,
		})
	}
}

// fail moves the client to the terminal Failed state and resolves all
// pending requests as failures.
func (c *Client) fail(reason string, cause error) {
	c.mu.Lock()
	if c.state == StateFailed || c.state == StateStopped || c.state == StateShuttingDown {
		// Already terminal, or a deliberate shutdown is closing the pipes
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.failPendingLocked()
	c.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })

	c.writeMu.Lock()
	transport := c.transport
	c.writeMu.Unlock()
	if transport != nil {
		_ = transport.Close()
	}

	if c.logger != nil {
		fields := map[string]interface{}{"reason": reason}
		if cause != nil {
			fields["error"] = cause.Error()
		}
		c.logger.Warn("Semantic client failed", fields)
	}
}

func (c *Client) failPendingLocked() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) setState(state ClientState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// isClosedErr reports whether err indicates a closed pipe or file
func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, io.ErrClosedPipe) || stderrors.Is(err, os.ErrClosed) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "closed pipe") ||
		strings.Contains(s, "file already closed") ||
		strings.Contains(s, "broken pipe")
}
