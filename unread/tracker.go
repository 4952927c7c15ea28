////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package unread keeps per-peer unread message counts for the contact list.
// Counts are session-local: they start at zero on every start and are not
// reconciled with the server's notion of unread.
package unread

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// Tracker counts unread messages per peer. Messages from the currently
// selected peer are never counted; their conversation is on screen, so the
// user is assumed to see them as they arrive. All methods are safe for
// concurrent use.
type Tracker struct {
	mux      sync.Mutex
	me       int64
	selected int64
	counts   map[int64]int
}

// NewTracker creates a tracker for the given current user with no peer
// selected and all counts at zero.
func NewTracker(me int64) *Tracker {
	return &Tracker{
		me:     me,
		counts: make(map[int64]int),
	}
}

// Select marks the peer's conversation as on screen and clears its count.
func (t *Tracker) Select(peerID int64) {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.selected = peerID
	delete(t.counts, peerID)
}

// Deselect marks no conversation as on screen; every peer counts again.
func (t *Tracker) Deselect() {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.selected = 0
}

// Selected returns the currently selected peer, or zero if none.
func (t *Tracker) Selected() int64 {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.selected
}

// Observe feeds one live message event. The count for the sender increments
// only if the message is addressed to the current user and the sender is not
// the selected peer. Echoes of the user's own sends never count.
func (t *Tracker) Observe(fromUserID, toUserID int64) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if toUserID != t.me || fromUserID == t.me || fromUserID == t.selected {
		return
	}
	t.counts[fromUserID]++
	jww.TRACE.Printf("[UNREAD] User %d now at %d unread",
		fromUserID, t.counts[fromUserID])
}

// Count returns the unread count for one peer.
func (t *Tracker) Count(peerID int64) int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.counts[peerID]
}

// Counts returns a snapshot of all nonzero counts, keyed by peer.
func (t *Tracker) Counts() map[int64]int {
	t.mux.Lock()
	defer t.mux.Unlock()
	snapshot := make(map[int64]int, len(t.counts))
	for peer, n := range t.counts {
		snapshot[peer] = n
	}
	return snapshot
}

// Clear resets every count to zero without changing the selection.
func (t *Tracker) Clear() {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.counts = make(map[int64]int)
}
