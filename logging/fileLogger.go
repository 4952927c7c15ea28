////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package logging

import (
	"io"

	"github.com/armon/circbuf"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// FileLogger records jwalterweatherman logs to an in-memory circular buffer
// so the most recent log output can be retrieved for a support bundle or a
// diagnostics view without ever touching the filesystem.
type FileLogger struct {
	threshold      jww.Threshold
	maxLogFileSize int
	listenerID     uint64
	cb             *circbuf.Buffer
}

// NewFileLogger starts recording logs at the specified threshold to an
// in-memory buffer of the given max size. Returns a [FileLogger] that can be
// used to get the captured log.
func NewFileLogger(threshold jww.Threshold, maxLogFileSize int) (*FileLogger, error) {
	b, err := circbuf.NewBuffer(int64(maxLogFileSize))
	if err != nil {
		return nil, errors.Wrap(err, "could not create new circular buffer")
	}

	fl := &FileLogger{
		threshold:      threshold,
		maxLogFileSize: maxLogFileSize,
		cb:             b,
	}
	fl.listenerID = AddLogListener(fl.Listen)

	jww.FEEDBACK.Printf("[LOG] Recording log to memory buffer of max size %d "+
		"at level %s", fl.maxLogFileSize, fl.threshold)

	return fl, nil
}

// Write adheres to the io.Writer interface and writes log entries to the
// buffer.
func (fl *FileLogger) Write(p []byte) (n int, err error) {
	return fl.cb.Write(p)
}

// Listen adheres to the [jwalterweatherman.LogListener] type and returns the
// log writer when the threshold is within the set threshold limit.
func (fl *FileLogger) Listen(t jww.Threshold) io.Writer {
	if t < fl.threshold {
		return nil
	}
	return fl
}

// StopLogging unregisters the listener and stops log message writes. Once
// logging is stopped, it cannot be resumed.
func (fl *FileLogger) StopLogging() {
	RemoveLogListener(fl.listenerID)
	fl.threshold = 20
}

// GetFile returns the entire captured log.
func (fl *FileLogger) GetFile() []byte {
	return fl.cb.Bytes()
}

// Threshold returns the log level threshold of the buffer.
func (fl *FileLogger) Threshold() jww.Threshold {
	return fl.threshold
}

// MaxSize returns the max size, in bytes, that the buffer is allowed to be.
func (fl *FileLogger) MaxSize() int {
	return fl.maxLogFileSize
}

// Size returns the current size, in bytes, written to the buffer.
func (fl *FileLogger) Size() int {
	return int(fl.cb.Size())
}
