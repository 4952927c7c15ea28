////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package hub

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aquilax/truncate"
	jww "github.com/spf13/jwalterweatherman"
)

// EventHandler is called with the raw JSON arguments of an inbound hub
// invocation. Handlers for one event run in registration order, on the read
// loop, so inbound events are observed in the order the transport yields
// them.
type EventHandler func(arguments []json.RawMessage)

// On registers a handler for the named inbound event. Multiple handlers per
// event are permitted. Returns a unique ID used to remove exactly this
// handler with Off, so a component can unregister its own handlers without
// touching anyone else's.
func (c *Conn) On(event string, handler EventHandler) uint64 {
	c.mux.Lock()
	defer c.mux.Unlock()

	id := c.nextHandlerID
	c.nextHandlerID++

	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]EventHandler)
	}
	c.handlers[event][id] = handler
	return id
}

// Off removes the handler with the given ID from the named event. Removing a
// handler that was already removed is a no-op.
func (c *Conn) Off(event string, id uint64) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if hs, exists := c.handlers[event]; exists {
		delete(hs, id)
		if len(hs) == 0 {
			delete(c.handlers, event)
		}
	}
}

// dispatch calls every handler registered for the event, in registration
// order.
func (c *Conn) dispatch(event string, arguments []json.RawMessage) {
	c.mux.Lock()
	hs := c.handlers[event]
	ids := make([]uint64, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	// Map iteration order is random; sort so registration order holds.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ordered := make([]EventHandler, len(ids))
	for i, id := range ids {
		ordered[i] = hs[id]
	}
	c.mux.Unlock()

	if len(ordered) == 0 {
		jww.DEBUG.Printf("[HUB] No handler registered for event %q", event)
		return
	}
	for _, h := range ordered {
		h(arguments)
	}
}

// logFrame prints a frame at DEBUG when message logging is enabled. Frames
// are truncated so a large payload cannot flood the log.
func (c *Conn) logFrame(direction string, frame []byte) {
	if c.params.MessageLogging {
		jww.DEBUG.Printf("[HUB] %s frame: %s", direction, truncate.Truncate(
			fmt.Sprintf("%q", frame), 64, "...", truncate.PositionMiddle))
	}
}
