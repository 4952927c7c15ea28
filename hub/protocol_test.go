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
	"reflect"
	"testing"
)

// Tests that encodeFrame terminates the payload with the record separator.
func TestEncodeFrame(t *testing.T) {
	frame, err := encodeFrame(handshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		t.Fatalf("Failed to encode frame: %+v", err)
	}

	if frame[len(frame)-1] != recordSeparator {
		t.Errorf("Frame does not end with the record separator: %q", frame)
	}

	expected := []byte(`{"protocol":"json","version":1}`)
	if !bytes.Equal(frame[:len(frame)-1], expected) {
		t.Errorf("Unexpected frame body.\nexpected: %s\nreceived: %s",
			expected, frame[:len(frame)-1])
	}
}

// Tests that splitFrames handles multiple frames in one transport message and
// drops empty fragments.
func TestSplitFrames(t *testing.T) {
	data := []byte("{\"type\":6}\x1e{\"type\":1,\"target\":\"PrivateMessage\"}\x1e")
	frames := splitFrames(data)

	expected := [][]byte{
		[]byte(`{"type":6}`),
		[]byte(`{"type":1,"target":"PrivateMessage"}`),
	}
	if !reflect.DeepEqual(frames, expected) {
		t.Errorf("Unexpected frames.\nexpected: %s\nreceived: %s",
			expected, frames)
	}

	if frames = splitFrames([]byte{recordSeparator}); frames != nil {
		t.Errorf("Expected no frames, received: %s", frames)
	}
}

// Tests that a hubMessage round-trips through JSON with raw arguments
// preserved.
func TestHubMessage_RoundTrip(t *testing.T) {
	expected := hubMessage{
		Type:         invocationType,
		InvocationID: "abc-123",
		Target:       "SendPrivate",
		Arguments: []json.RawMessage{
			json.RawMessage(`"7"`), json.RawMessage(`"hello"`)},
	}

	data, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("Failed to marshal: %+v", err)
	}
	var received hubMessage
	if err = json.Unmarshal(data, &received); err != nil {
		t.Fatalf("Failed to unmarshal: %+v", err)
	}

	if !reflect.DeepEqual(expected, received) {
		t.Errorf("Unexpected hubMessage.\nexpected: %+v\nreceived: %+v",
			expected, received)
	}
}
