package odoo

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel errors of the RPC layer.
var (
	// ErrAuthenticationFailed indicates the ERP rejected the credentials.
	ErrAuthenticationFailed = errors.New("godoo-mcp: authentication failed")

	// ErrNotConnected indicates an operation was attempted before Connect
	// or after Disconnect.
	ErrNotConnected = errors.New("godoo-mcp: not connected to Odoo")

	// ErrRPC is the generic wrapper for XML-RPC failures that cannot be
	// classified further.
	ErrRPC = errors.New("godoo-mcp: Odoo XML-RPC call failed")
)

// Fault is a structured view of an Odoo XML-RPC fault.
type Fault struct {
	Code     int
	Message  string
	Original error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", ErrRPC, f.Message)
}

// Unwrap exposes the underlying transport error to errors.Is/As.
func (f *Fault) Unwrap() error {
	return f.Original
}

// faultRe extracts the code and message out of the string-typed faults the
// kolo client surfaces, e.g. `Fault 1: 'Access Denied'`.
var faultRe = regexp.MustCompile(`[Ff]ault (\d+): '?(.*?)'?$`)

// parseFault classifies an error returned by the XML-RPC client. Transport
// errors pass through unchanged so the retry layer can recognize them.
func parseFault(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	code := 0
	message := msg
	if m := faultRe.FindStringSubmatch(msg); len(m) == 3 {
		if c, cerr := strconv.Atoi(m[1]); cerr == nil {
			code = c
		}
		message = m[2]
	} else if isTransportError(err) {
		return err
	}

	return &Fault{Code: code, Message: message, Original: err}
}

// isTransportError reports whether err looks like a transient network
// failure rather than an application fault raised by the ERP.
func isTransportError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"timeout awaiting response",
		"eof",
		"no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var (
	pathRe      = regexp.MustCompile(`(/(?:opt|usr)/[^\s,'"]+)`)
	tracebackRe = regexp.MustCompile(`(?s)Traceback \(most recent call last\).*?(?:\n\n|\z)`)
)

// sanitizeFault strips server-side file paths and traceback blocks out of a
// fault message before it crosses to an MCP client.
func sanitizeFault(message string) string {
	message = tracebackRe.ReplaceAllString(message, "")
	message = pathRe.ReplaceAllString(message, "<path>")
	message = strings.TrimSpace(message)
	if message == "" {
		message = "Internal server error"
	}
	return message
}

// invalidLocaleRe matches the ERP fault raised when the configured locale is
// not installed on the server.
var invalidLocaleRe = regexp.MustCompile(`(?i)invalid language code`)
