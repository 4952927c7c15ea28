////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ConversationReady identifies the conversation between the current user and
// a peer. The backend creates the conversation on first request, so resolving
// is an idempotent get-or-create.
type ConversationReady struct {
	ConversationID int64 `json:"conversationId"`
	OtherUserID    int64 `json:"otherUserId"`
}

// Reaction is one user's emoji reaction to a message.
type Reaction struct {
	UserID    int64     `json:"userId"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage is a persisted message returned by the history endpoint.
type ChatMessage struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	FromUserID     int64      `json:"fromUserId"`
	ToUserID       int64      `json:"toUserId"`
	Content        string     `json:"content"`
	SentAt         time.Time  `json:"sentAt"`
	DeliveredAt    *time.Time `json:"deliveredAt"`
	ReadAt         *time.Time `json:"readAt"`
	Reactions      []Reaction `json:"reactions"`
}

// GetOrCreateConversation resolves the conversation with the given peer,
// creating it server-side if this is the first contact between the pair.
func (c *Client) GetOrCreateConversation(
	ctx context.Context, peerID int64) (ConversationReady, error) {
	var conv ConversationReady
	path := fmt.Sprintf("/conversations/with/%d", peerID)
	if err := c.get(ctx, path, nil, &conv); err != nil {
		return ConversationReady{}, errors.WithMessagef(err,
			"could not resolve conversation with user %d", peerID)
	}
	return conv, nil
}

// GetMessages returns up to take messages of the conversation's history,
// skipping the newest skip entries. Pages are ordered oldest first. A page
// shorter than take is the only end-of-history signal the backend gives.
func (c *Client) GetMessages(ctx context.Context,
	conversationID int64, skip, take int) ([]ChatMessage, error) {
	query := url.Values{
		"skip": {strconv.Itoa(skip)},
		"take": {strconv.Itoa(take)},
	}

	var page []ChatMessage
	path := fmt.Sprintf("/conversations/%d/messages", conversationID)
	if err := c.get(ctx, path, query, &page); err != nil {
		return nil, errors.WithMessagef(err,
			"could not load history page (skip %d) of conversation %d",
			skip, conversationID)
	}
	return page, nil
}
