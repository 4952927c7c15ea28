////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Hub event names pushed by the server.
const (
	EventPrivateMessage   = "PrivateMessage"
	EventMessageDelivered = "MessageDelivered"
	EventMessagesRead     = "MessagesRead"
	EventMessageReaction  = "MessageReaction"
)

// Hub method names invoked by the client. SendPrivate and MarkAsRead take
// the peer's user ID as a string, not a number.
const (
	MethodSendPrivate    = "SendPrivate"
	MethodMarkAsRead     = "MarkAsRead"
	MethodReactToMessage = "ReactToMessage"
)

// flexInt is an int64 that unmarshals from either a JSON number or a quoted
// string. The hub is inconsistent about ID encoding across events, so every
// ID field uses this type rather than guessing per event.
type flexInt int64

// UnmarshalJSON adheres to the json.Unmarshaler interface.
func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if string(data) == "null" || len(data) == 0 {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid ID %q", data)
	}
	*f = flexInt(n)
	return nil
}

// PrivateMessage is the payload of the PrivateMessage event: a new message
// in some conversation the current user is part of, including echoes of the
// user's own sends.
type PrivateMessage struct {
	ID         flexInt   `json:"id"`
	FromUserID flexInt   `json:"fromUserId"`
	ToUserID   flexInt   `json:"toUserId"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
}

// MessageDelivered is the payload of the MessageDelivered event: the server
// persisted a message the current user sent.
type MessageDelivered struct {
	MessageID   flexInt   `json:"messageId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// MessagesRead is the payload of the MessagesRead event: the peer opened the
// conversation and every message the current user sent so far is now read.
type MessagesRead struct {
	ConversationID flexInt   `json:"conversationId"`
	ReaderID       flexInt   `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
}

// MessageReaction is the payload of the MessageReaction event: some user
// toggled an emoji reaction on a message.
type MessageReaction struct {
	MessageID flexInt   `json:"messageId"`
	UserID    flexInt   `json:"userId"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// decodeEvent unmarshals the first hub argument into out. Every chat event
// carries its payload as a single object argument.
func decodeEvent(arguments []json.RawMessage, out interface{}) error {
	if len(arguments) == 0 {
		return errors.New("event carried no arguments")
	}
	if err := json.Unmarshal(arguments[0], out); err != nil {
		return errors.Wrap(err, "failed to unmarshal event payload")
	}
	return nil
}
