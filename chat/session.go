////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package chat ties the hub connection, the REST backend, the timeline
// reconciler, and the unread tracker together into one chat session.
package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/edudesk/chatkit/api"
	"gitlab.com/edudesk/chatkit/emoji"
	"gitlab.com/edudesk/chatkit/hub"
	"gitlab.com/edudesk/chatkit/timeline"
	"gitlab.com/edudesk/chatkit/unread"
)

// Hub is the realtime connection the session listens on and invokes methods
// through. *hub.Conn satisfies it.
type Hub interface {
	Invoke(ctx context.Context, method string, args ...interface{}) error
	On(event string, handler hub.EventHandler) uint64
	Off(event string, id uint64)
}

// Backend is the REST surface the session loads conversations and history
// from. *api.Client satisfies it.
type Backend interface {
	GetOrCreateConversation(
		ctx context.Context, peerID int64) (api.ConversationReady, error)
	GetMessages(ctx context.Context,
		conversationID int64, skip, take int) ([]api.ChatMessage, error)
}

// Session is one user's chat session: at most one conversation on screen at
// a time, with unread counts kept for all the others. All methods are safe
// for concurrent use.
type Session struct {
	me      int64
	hub     Hub
	backend Backend
	unread  *unread.Tracker

	mux sync.Mutex
	tl  *timeline.Timeline

	subs map[string]uint64
}

// NewSession creates a session for the given user and subscribes to the hub's
// chat events. Call Close to unsubscribe.
func NewSession(me int64, h Hub, backend Backend) *Session {
	s := &Session{
		me:      me,
		hub:     h,
		backend: backend,
		unread:  unread.NewTracker(me),
		subs:    make(map[string]uint64),
	}

	s.subs[EventPrivateMessage] = h.On(EventPrivateMessage, s.onPrivateMessage)
	s.subs[EventMessageDelivered] =
		h.On(EventMessageDelivered, s.onMessageDelivered)
	s.subs[EventMessagesRead] = h.On(EventMessagesRead, s.onMessagesRead)
	s.subs[EventMessageReaction] = h.On(EventMessageReaction, s.onMessageReaction)

	return s
}

// Close unsubscribes from the hub's chat events. The hub connection itself is
// owned by the caller and stays up.
func (s *Session) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	for event, id := range s.subs {
		s.hub.Off(event, id)
	}
	s.subs = make(map[string]uint64)
}

// current returns the timeline on screen, or nil if none.
func (s *Session) current() *timeline.Timeline {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.tl
}

// Select puts the conversation with the given peer on screen: resolves the
// conversation, loads the newest history page, and tells the server the
// backlog is now read. Selecting the already selected peer is a no-op.
// Another Select while this one is loading wins; the superseded load's
// results are discarded.
func (s *Session) Select(ctx context.Context, peerID int64) error {
	s.mux.Lock()
	if s.tl != nil && s.tl.Peer() == peerID &&
		s.tl.State() != timeline.Empty {
		s.mux.Unlock()
		return nil
	}
	tl := timeline.New(s.me, peerID)
	tl.BeginLoad()
	s.tl = tl
	s.mux.Unlock()

	s.unread.Select(peerID)

	conv, err := s.backend.GetOrCreateConversation(ctx, peerID)
	if err != nil {
		if s.current() == tl {
			tl.FailLoad()
		}
		return err
	}
	if s.current() != tl {
		return nil
	}
	tl.Bind(conv.ConversationID)

	page, err := s.backend.GetMessages(
		ctx, conv.ConversationID, 0, timeline.PageSize)
	if err != nil {
		if s.current() == tl {
			tl.FailLoad()
		}
		return err
	}
	if s.current() != tl {
		return nil
	}
	tl.SeedPage(s.convert(page))

	// Tell the server the backlog is read. Fire and forget: a lost receipt
	// only delays the peer's read checkmarks.
	go func() {
		err := s.hub.Invoke(context.Background(), MethodMarkAsRead,
			conv.ConversationID, strconv.FormatInt(peerID, 10))
		if err != nil {
			jww.WARN.Printf("[CHAT] Failed to mark conversation %d read: %+v",
				conv.ConversationID, err)
		}
	}()

	return nil
}

// Deselect takes the current conversation off screen.
func (s *Session) Deselect() {
	s.mux.Lock()
	s.tl = nil
	s.mux.Unlock()
	s.unread.Deselect()
}

// Send sends a text message to the selected peer. The message appears in the
// timeline only once the server echoes it back; there is no optimistic
// insert to roll back on failure.
func (s *Session) Send(ctx context.Context, text string) error {
	tl := s.current()
	if tl == nil {
		return errors.New("chat: no conversation selected")
	}
	return s.hub.Invoke(ctx, MethodSendPrivate,
		strconv.FormatInt(tl.Peer(), 10), text)
}

// React toggles an emoji reaction on a message of the selected conversation.
// The glyph must be one of the supported reaction emoji.
func (s *Session) React(
	ctx context.Context, messageID int64, glyph string) error {
	if err := emoji.Validate(glyph); err != nil {
		return err
	}
	return s.hub.Invoke(ctx, MethodReactToMessage, messageID, glyph)
}

// LoadOlder fetches the next older history page of the selected conversation.
// Calling it with no more history, or while another load is in flight, is a
// no-op.
func (s *Session) LoadOlder(ctx context.Context) error {
	tl := s.current()
	if tl == nil {
		return errors.New("chat: no conversation selected")
	}

	skip, err := tl.BeginLoadOlder()
	if err != nil {
		jww.DEBUG.Printf("[CHAT] Skipping older page load: %+v", err)
		return nil
	}

	page, err := s.backend.GetMessages(
		ctx, tl.ConversationID(), skip, timeline.PageSize)
	if err != nil {
		tl.AbortLoadOlder()
		return err
	}
	tl.PrependPage(s.convert(page))
	return nil
}

// Messages returns a snapshot of the selected conversation's timeline, or
// nil if none is selected.
func (s *Session) Messages() []timeline.Message {
	tl := s.current()
	if tl == nil {
		return nil
	}
	return tl.Messages()
}

// Timeline returns the timeline on screen, or nil if none.
func (s *Session) Timeline() *timeline.Timeline {
	return s.current()
}

// Unread returns the session's unread tracker.
func (s *Session) Unread() *unread.Tracker {
	return s.unread
}

// convert maps persisted backend messages onto timeline entries.
func (s *Session) convert(page []api.ChatMessage) []timeline.Message {
	out := make([]timeline.Message, len(page))
	for i, m := range page {
		reactions := make([]timeline.Reaction, len(m.Reactions))
		for j, r := range m.Reactions {
			reactions[j] = timeline.Reaction{
				UserID: r.UserID, Type: r.Type, CreatedAt: r.CreatedAt}
		}
		out[i] = timeline.Message{
			ID:          m.ID,
			FromUserID:  m.FromUserID,
			ToUserID:    m.ToUserID,
			Text:        m.Content,
			SentAt:      m.SentAt,
			IsMine:      m.FromUserID == s.me,
			DeliveredAt: m.DeliveredAt,
			ReadAt:      m.ReadAt,
			Reactions:   reactions,
		}
	}
	return out
}

// onPrivateMessage feeds a new message into the unread tracker and, if its
// conversation is on screen, into the timeline.
func (s *Session) onPrivateMessage(arguments []json.RawMessage) {
	var event PrivateMessage
	if err := decodeEvent(arguments, &event); err != nil {
		jww.ERROR.Printf("[CHAT] Dropping %s event: %+v",
			EventPrivateMessage, err)
		return
	}

	s.unread.Observe(int64(event.FromUserID), int64(event.ToUserID))

	tl := s.current()
	if tl == nil {
		return
	}
	tl.ApplyInbound(timeline.Message{
		ID:         int64(event.ID),
		FromUserID: int64(event.FromUserID),
		ToUserID:   int64(event.ToUserID),
		Text:       event.Message,
		SentAt:     event.SentAt,
	})
}

// onMessageDelivered stamps the delivery receipt onto the timeline.
func (s *Session) onMessageDelivered(arguments []json.RawMessage) {
	var event MessageDelivered
	if err := decodeEvent(arguments, &event); err != nil {
		jww.ERROR.Printf("[CHAT] Dropping %s event: %+v",
			EventMessageDelivered, err)
		return
	}

	if tl := s.current(); tl != nil {
		tl.ApplyDelivered(int64(event.MessageID), event.DeliveredAt)
	}
}

// onMessagesRead applies the peer's bulk read signal to the timeline.
func (s *Session) onMessagesRead(arguments []json.RawMessage) {
	var event MessagesRead
	if err := decodeEvent(arguments, &event); err != nil {
		jww.ERROR.Printf("[CHAT] Dropping %s event: %+v",
			EventMessagesRead, err)
		return
	}

	if tl := s.current(); tl != nil {
		tl.ApplyRead(int64(event.ConversationID), event.ReadAt)
	}
}

// onMessageReaction toggles a reaction on the timeline.
func (s *Session) onMessageReaction(arguments []json.RawMessage) {
	var event MessageReaction
	if err := decodeEvent(arguments, &event); err != nil {
		jww.ERROR.Printf("[CHAT] Dropping %s event: %+v",
			EventMessageReaction, err)
		return
	}

	if tl := s.current(); tl != nil {
		tl.ApplyReaction(int64(event.MessageID), int64(event.UserID),
			event.Type, event.CreatedAt)
	}
}
