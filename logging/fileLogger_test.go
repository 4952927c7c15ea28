////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package logging

import (
	"bytes"
	"io"
	"testing"

	jww "github.com/spf13/jwalterweatherman"
)

// Tests that written log entries can be read back via GetFile.
func TestFileLogger_WriteGetFile(t *testing.T) {
	fl, err := NewFileLogger(jww.LevelDebug, 512)
	if err != nil {
		t.Fatalf("Failed to make FileLogger: %+v", err)
	}
	defer fl.StopLogging()

	expected := []byte("INFO some log line\n")
	n, err := fl.Write(expected)
	if err != nil {
		t.Fatalf("Write failed: %+v", err)
	}
	if n != len(expected) {
		t.Errorf("Unexpected bytes written.\nexpected: %d\nreceived: %d",
			len(expected), n)
	}

	if !bytes.Equal(fl.GetFile(), expected) {
		t.Errorf("Unexpected file contents.\nexpected: %q\nreceived: %q",
			expected, fl.GetFile())
	}
	if fl.Size() != len(expected) {
		t.Errorf("Unexpected size.\nexpected: %d\nreceived: %d",
			len(expected), fl.Size())
	}
}

// Tests that the buffer only keeps the most recent bytes once it wraps.
func TestFileLogger_Wrap(t *testing.T) {
	fl, err := NewFileLogger(jww.LevelDebug, 8)
	if err != nil {
		t.Fatalf("Failed to make FileLogger: %+v", err)
	}
	defer fl.StopLogging()

	if _, err = fl.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write failed: %+v", err)
	}

	expected := []byte("23456789")
	if !bytes.Equal(fl.GetFile(), expected) {
		t.Errorf("Unexpected file contents after wrap."+
			"\nexpected: %q\nreceived: %q", expected, fl.GetFile())
	}
}

// Tests that Listen filters entries below the threshold.
func TestFileLogger_Listen(t *testing.T) {
	fl, err := NewFileLogger(jww.LevelWarn, 512)
	if err != nil {
		t.Fatalf("Failed to make FileLogger: %+v", err)
	}
	defer fl.StopLogging()

	if w := fl.Listen(jww.LevelDebug); w != nil {
		t.Errorf("Listen returned a writer below the threshold: %v", w)
	}
	if w := fl.Listen(jww.LevelError); w == nil {
		t.Error("Listen did not return a writer at or above the threshold.")
	}
}

// Tests that listeners can be added and removed from the registry.
func TestAddRemoveLogListener(t *testing.T) {
	id := AddLogListener(func(jww.Threshold) io.Writer { return nil })

	logListeners.Lock()
	_, exists := logListeners.listeners[id]
	logListeners.Unlock()
	if !exists {
		t.Errorf("Listener %d not found in registry.", id)
	}

	RemoveLogListener(id)

	logListeners.Lock()
	_, exists = logListeners.listeners[id]
	logListeners.Unlock()
	if exists {
		t.Errorf("Listener %d still in registry after removal.", id)
	}
}
