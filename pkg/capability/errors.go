package capability

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a remote tool failure
type ErrorKind string

const (
	// ErrKindTransport marks connection-level failures (broken pipe, closed socket)
	ErrKindTransport ErrorKind = "transport"
	// ErrKindTimeout marks request deadline expiry
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindRemote marks application-level errors reported by the remote tool
	ErrKindRemote ErrorKind = "remote"
)

// RemoteToolError describes a failed remote tool interaction
type RemoteToolError struct {
	Server string
	Tool   string
	Kind   ErrorKind
	Err    error
}

func (e *RemoteToolError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("capability server %s: tool %s: %s error: %v", e.Server, e.Tool, e.Kind, e.Err)
	}
	return fmt.Sprintf("capability server %s: %s error: %v", e.Server, e.Kind, e.Err)
}

func (e *RemoteToolError) Unwrap() error {
	return e.Err
}

var (
	// ErrStartupTimeout is returned when the handshake exceeds the startup timeout
	ErrStartupTimeout = errors.New("capability server startup timed out")
	// ErrNotConnected is returned when invoking against a client that never connected
	ErrNotConnected = errors.New("capability server is not connected")
	// ErrClosed is returned when invoking against a closed client
	ErrClosed = errors.New("capability server is closed")
)
