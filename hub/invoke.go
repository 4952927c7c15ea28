////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// ErrNotConnected is returned by Invoke when the connection is not in the
// Connected state. Callers must not treat it as retryable until a state
// listener reports Connected again.
var ErrNotConnected = errors.New("hub: not connected")

// Invoke calls the named hub method. It resolves when the hub acknowledges
// receipt with a completion frame, not when any business-level reply arrives;
// replies come back as separate inbound events.
func (c *Conn) Invoke(ctx context.Context, method string, args ...interface{}) error {
	c.mux.Lock()
	if c.state != Connected || c.ws == nil {
		c.mux.Unlock()
		return ErrNotConnected
	}
	ws := c.ws

	id := uuid.NewString()
	done := make(chan error, 1)
	c.pending[id] = done
	c.mux.Unlock()

	rawArgs := make([]json.RawMessage, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			c.removePending(id)
			return errors.Errorf(
				"failed to marshal argument %d of %s: %+v", i, method, err)
		}
		rawArgs[i] = data
	}

	frame, err := encodeFrame(hubMessage{
		Type:         invocationType,
		InvocationID: id,
		Target:       method,
		Arguments:    rawArgs,
	})
	if err != nil {
		c.removePending(id)
		return err
	}
	c.logFrame("sending", frame)

	c.writeMux.Lock()
	err = ws.WriteMessage(websocket.TextMessage, frame)
	c.writeMux.Unlock()
	if err != nil {
		c.removePending(id)
		return errors.Wrapf(err, "failed to send invocation of %s", method)
	}

	timer := time.NewTimer(c.params.InvokeTimeout)
	defer timer.Stop()
	select {
	case err = <-done:
		if err != nil {
			return errors.WithMessagef(err, "invocation of %s failed", method)
		}
		return nil
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	case <-timer.C:
		c.removePending(id)
		return errors.Errorf("invocation of %s timed out after %s",
			method, c.params.InvokeTimeout)
	}
}

// complete resolves the pending invocation with the given ID. Unknown IDs are
// ignored; the invocation may have timed out and been removed already.
func (c *Conn) complete(id, errMsg string) {
	c.mux.Lock()
	done, exists := c.pending[id]
	delete(c.pending, id)
	c.mux.Unlock()

	if !exists {
		return
	}
	if errMsg != "" {
		done <- errors.New(errMsg)
	} else {
		done <- nil
	}
}

// removePending drops the pending entry for an invocation that will never be
// completed.
func (c *Conn) removePending(id string) {
	c.mux.Lock()
	delete(c.pending, id)
	c.mux.Unlock()
}

// failPendingLocked completes every pending invocation with the given error.
// Must be called with the mutex held; used when the connection drops.
func (c *Conn) failPendingLocked(err error) {
	for id, done := range c.pending {
		done <- err
		delete(c.pending, id)
	}
}
