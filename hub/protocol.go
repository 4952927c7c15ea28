////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package hub

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// recordSeparator terminates every frame of the JSON hub protocol. A single
// websocket message may carry several frames.
const recordSeparator byte = 0x1e

// Frame types of the JSON hub protocol.
const (
	invocationType = 1
	completionType = 3
	pingType       = 6
	closeType      = 7
)

// handshakeRequest is the first frame sent after the websocket opens. The
// server must answer with a handshakeResponse before any hub traffic flows.
type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// handshakeResponse acknowledges the handshake. An empty object means the
// server accepted the requested protocol.
type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// hubMessage is the envelope for every post-handshake frame. Which fields are
// populated depends on Type.
type hubMessage struct {
	Type int `json:"type"`

	// Invocation and completion frames.
	InvocationID string `json:"invocationId,omitempty"`

	// Invocation frames: the hub method or client event name and its
	// arguments, left raw so the caller decodes them against a known type.
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`

	// Completion and close frames.
	Error string `json:"error,omitempty"`
}

// encodeFrame marshals v and appends the record separator.
func encodeFrame(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Errorf("failed to marshal hub frame: %+v", err)
	}
	return append(data, recordSeparator), nil
}

// splitFrames splits raw transport data into individual frames. A trailing
// partial frame is not expected over websocket transport and is dropped.
func splitFrames(data []byte) [][]byte {
	var frames [][]byte
	for _, frame := range bytes.Split(data, []byte{recordSeparator}) {
		if len(frame) > 0 {
			frames = append(frames, frame)
		}
	}
	return frames
}
