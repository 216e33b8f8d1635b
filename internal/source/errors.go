package source

import "fmt"

// ConnectivityError reports a transport failure: DNS, dial, TLS, timeout or a
// broken body read. Callers typically try to re-associate the network.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("source: connect %s: %v", e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ProtocolError reports a non-success HTTP status.
type ProtocolError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("source: %s returned %s", e.URL, e.Status)
}

// ParseError reports a payload that is not the expected JSON document.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source: parse: %s: %v", e.Reason, e.Err)
	}
	return "source: parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }
