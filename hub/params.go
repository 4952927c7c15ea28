////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package hub

import "time"

// Params are parameters used by the [Conn].
type Params struct {
	// MessageLogging indicates if a DEBUG message should be printed every time
	// a frame is sent or received.
	MessageLogging bool

	// HandshakeTimeout is how long to wait for the server to acknowledge the
	// protocol handshake after the websocket opens.
	HandshakeTimeout time.Duration

	// InvokeTimeout is the default timeout to wait for an invocation to be
	// acknowledged before returning an error.
	InvokeTimeout time.Duration

	// ReconnectInitialInterval is the delay before the first reconnect
	// attempt after an unexpected drop. Each subsequent attempt doubles the
	// delay up to ReconnectMaxInterval.
	ReconnectInitialInterval time.Duration

	// ReconnectMaxInterval caps the delay between reconnect attempts.
	ReconnectMaxInterval time.Duration

	// MaxReconnectAttempts bounds automatic reconnection. Once exceeded the
	// connection transitions to a terminal Disconnected state and stops
	// retrying.
	MaxReconnectAttempts int
}

// DefaultParams returns the default parameters.
func DefaultParams() Params {
	return Params{
		MessageLogging:           false,
		HandshakeTimeout:         15 * time.Second,
		InvokeTimeout:            30 * time.Second,
		ReconnectInitialInterval: time.Second,
		ReconnectMaxInterval:     30 * time.Second,
		MaxReconnectAttempts:     5,
	}
}
