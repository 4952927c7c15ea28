////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package timeline reconciles one conversation's message list from three
// sources that race with each other: paginated history fetches, the user's
// own sends echoed back by the hub, and the peer's live events. Every path
// funnels through a single merge so the deduplication rules hold no matter
// which source delivers a message first.
package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// PageSize is the fixed history page size. The skip offset advances by this
// amount per page regardless of how many messages a page actually returned.
const PageSize = 50

// dedupWindow is the send-time tolerance within which two messages with
// identical text are treated as the same message. It exists to suppress the
// duplicate that occurs when the current user's own send is both returned by
// a history fetch and echoed back by the hub. The hub assigns no client-side
// idempotency token, so this heuristic is the only available tie-breaker; it
// will falsely collapse identical messages retyped within the window, which
// is accepted.
const dedupWindow = 2 * time.Second

// State is the loading state of a timeline.
type State uint8

const (
	Empty State = iota
	Loading
	Ready
	// LoadingMore is entered from Ready while an older page is in flight. It
	// doubles as the mutex that prevents two concurrent page loads.
	LoadingMore
)

// String adheres to the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Loading:
		return "Loading"
	case Ready:
		return "Ready"
	case LoadingMore:
		return "LoadingMore"
	default:
		return "Unknown"
	}
}

// Errors returned by BeginLoadOlder.
var (
	ErrNotReady      = errors.New("timeline: not ready for an older page")
	ErrNoMoreHistory = errors.New("timeline: history exhausted")
)

// Reaction is one user's emoji reaction to a message. Presence is a toggle:
// applying the same (user, type) pair again removes it.
type Reaction struct {
	UserID    int64
	Type      string
	CreatedAt time.Time
}

// Message is a single entry of the timeline.
type Message struct {
	// ID is the server-assigned identifier. Zero means the server has not
	// confirmed the message yet.
	ID          int64
	FromUserID  int64
	ToUserID    int64
	Text        string
	SentAt      time.Time
	IsMine      bool
	DeliveredAt *time.Time
	ReadAt      *time.Time
	Reactions   []Reaction
}

// Timeline holds the reconciled message list of one conversation. All
// methods are safe for concurrent use.
type Timeline struct {
	mux sync.Mutex

	conversationID int64
	me             int64
	peer           int64

	state    State
	messages []Message
	skip     int
	hasMore  bool
}

// New creates an empty timeline for the conversation between the current
// user and the peer. The conversation ID is usually not known yet at this
// point; Bind sets it once resolution completes.
func New(me, peer int64) *Timeline {
	return &Timeline{
		me:      me,
		peer:    peer,
		state:   Empty,
		hasMore: true,
	}
}

// Bind attaches the resolved conversation ID.
func (t *Timeline) Bind(conversationID int64) {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.conversationID = conversationID
}

// ConversationID returns the bound conversation ID, or zero before Bind.
func (t *Timeline) ConversationID() int64 {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.conversationID
}

// Peer returns the peer user ID this timeline was created for.
func (t *Timeline) Peer() int64 {
	return t.peer
}

// State returns the current loading state.
func (t *Timeline) State() State {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.state
}

// HasMore reports whether older history may still exist.
func (t *Timeline) HasMore() bool {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.hasMore
}

// Messages returns a snapshot of the timeline in display order: ascending
// send time, append order preserving ties.
func (t *Timeline) Messages() []Message {
	t.mux.Lock()
	defer t.mux.Unlock()
	snapshot := make([]Message, len(t.messages))
	copy(snapshot, t.messages)
	return snapshot
}

// Len returns the number of messages currently loaded.
func (t *Timeline) Len() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return len(t.messages)
}

// BeginLoad clears the timeline and marks the initial history fetch as in
// flight.
func (t *Timeline) BeginLoad() {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.state = Loading
	t.messages = nil
	t.skip = 0
	t.hasMore = true
}

// FailLoad aborts the initial history fetch, returning to Empty so the load
// can be retried.
func (t *Timeline) FailLoad() {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.state == Loading {
		t.state = Empty
	}
}

// SeedPage installs the first history page and transitions to Ready. Any
// live messages that raced in during the load are kept; the merge drops
// whichever copy arrives second.
func (t *Timeline) SeedPage(page []Message) {
	t.mux.Lock()
	defer t.mux.Unlock()

	t.mergeLocked(page, true)
	t.skip = PageSize
	t.hasMore = len(page) == PageSize
	t.state = Ready
}

// BeginLoadOlder marks an older-page fetch as in flight and returns the skip
// offset to request. Returns ErrNoMoreHistory once the history is exhausted
// and ErrNotReady while another load is outstanding; both leave the timeline
// untouched.
func (t *Timeline) BeginLoadOlder() (int, error) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.state != Ready {
		return 0, ErrNotReady
	}
	if !t.hasMore {
		return 0, ErrNoMoreHistory
	}
	t.state = LoadingMore
	return t.skip, nil
}

// PrependPage installs an older history page fetched after BeginLoadOlder.
// The skip offset advances by the full page size requested, regardless of
// how many messages actually came back, unless the page signalled
// exhaustion.
func (t *Timeline) PrependPage(page []Message) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.state != LoadingMore {
		jww.WARN.Printf(
			"[TIMELINE] Dropping older page delivered in state %s", t.state)
		return
	}
	t.mergeLocked(page, true)
	t.skip += PageSize
	t.hasMore = len(page) == PageSize
	t.state = Ready
}

// AbortLoadOlder abandons an in-flight older-page fetch, leaving the loaded
// timeline untouched.
func (t *Timeline) AbortLoadOlder() {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.state == LoadingMore {
		t.state = Ready
	}
}

// ApplyInbound merges a live message event. The event is accepted only if
// its unordered (from, to) pair matches this timeline's (me, peer) pair;
// inbound push events carry no conversation ID to match on. Returns true if
// the message was added.
func (t *Timeline) ApplyInbound(m Message) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	mine := m.FromUserID == t.me && m.ToUserID == t.peer
	theirs := m.FromUserID == t.peer && m.ToUserID == t.me
	if !mine && !theirs {
		return false
	}
	m.IsMine = mine

	return t.mergeLocked([]Message{m}, false) > 0
}

// ApplyDelivered sets the delivery time on the message with the given ID. A
// missing ID is a no-op; the message may not be in the loaded window.
func (t *Timeline) ApplyDelivered(messageID int64, deliveredAt time.Time) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	for i := range t.messages {
		if t.messages[i].ID == messageID && messageID != 0 {
			at := deliveredAt
			t.messages[i].DeliveredAt = &at
			return true
		}
	}
	return false
}

// ApplyRead handles the peer's bulk "read up to now" signal: every message
// sent by the current user that has no read time yet acquires the event's.
// Events for other conversations are ignored. Returns the number of messages
// updated.
func (t *Timeline) ApplyRead(conversationID int64, readAt time.Time) int {
	t.mux.Lock()
	defer t.mux.Unlock()

	if conversationID != t.conversationID || t.conversationID == 0 {
		return 0
	}

	updated := 0
	for i := range t.messages {
		if t.messages[i].IsMine && t.messages[i].ReadAt == nil {
			at := readAt
			t.messages[i].ReadAt = &at
			updated++
		}
	}
	return updated
}

// ApplyReaction toggles the (user, type) reaction on the message with the
// given ID: present reactions are removed, absent ones appended. The same
// rule runs on both ends, so either party's toggle converges to the same
// state. Returns false if the message is not loaded.
func (t *Timeline) ApplyReaction(
	messageID, userID int64, emojiType string, createdAt time.Time) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	for i := range t.messages {
		if t.messages[i].ID != messageID || messageID == 0 {
			continue
		}

		reactions := t.messages[i].Reactions
		for j, r := range reactions {
			if r.UserID == userID && r.Type == emojiType {
				t.messages[i].Reactions =
					append(reactions[:j], reactions[j+1:]...)
				return true
			}
		}
		t.messages[i].Reactions = append(reactions, Reaction{
			UserID: userID, Type: emojiType, CreatedAt: createdAt})
		return true
	}
	return false
}

// mergeLocked folds a batch of messages into the timeline, dropping
// duplicates, and restores display order. History pages are placed before
// the existing list and live events after it; the stable sort then keeps
// that relative order for equal send times. Returns the number of messages
// added.
func (t *Timeline) mergeLocked(batch []Message, before bool) int {
	added := 0
	fresh := make([]Message, 0, len(batch))
	for _, m := range batch {
		if t.duplicateLocked(m) {
			jww.DEBUG.Printf("[TIMELINE] Dropping duplicate message %d (%q)",
				m.ID, m.Text)
			continue
		}
		fresh = append(fresh, m)
		added++
	}

	if before {
		t.messages = append(fresh, t.messages...)
	} else {
		t.messages = append(t.messages, fresh...)
	}

	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].SentAt.Before(t.messages[j].SentAt)
	})
	return added
}

// duplicateLocked reports whether the message is already present: either its
// server ID matches, or no ID matches but an existing message has identical
// text within the dedup window.
func (t *Timeline) duplicateLocked(m Message) bool {
	for i := range t.messages {
		if m.ID != 0 && t.messages[i].ID == m.ID {
			return true
		}
		if t.messages[i].Text == m.Text {
			delta := t.messages[i].SentAt.Sub(m.SentAt)
			if delta < 0 {
				delta = -delta
			}
			if delta < dedupWindow {
				return true
			}
		}
	}
	return false
}
