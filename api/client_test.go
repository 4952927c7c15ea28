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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/edudesk/chatkit/creds"
)

// Tests that GetOrCreateConversation hits the expected path, attaches the
// bearer token, and unwraps the envelope.
func TestClient_GetOrCreateConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/conversations/with/7", r.URL.Path)
			require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"success":true,"data":{"conversationId":42,"otherUserId":7}}`)
		}))
	defer server.Close()

	c := NewClient(server.URL, creds.Static("test-token"))
	conv, err := c.GetOrCreateConversation(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, ConversationReady{ConversationID: 42, OtherUserID: 7}, conv)
}

// Tests that GetMessages passes skip/take and decodes a page, including the
// nullable timestamps and reactions.
func TestClient_GetMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/conversations/42/messages", r.URL.Path)
			require.Equal(t, "50", r.URL.Query().Get("skip"))
			require.Equal(t, "50", r.URL.Query().Get("take"))
			fmt.Fprint(w, `{"success":true,"data":[
				{"id":1,"conversationId":42,"fromUserId":7,"toUserId":1,
				 "content":"hi","sentAt":"2024-03-01T10:00:00Z","readAt":null,
				 "reactions":[{"userId":1,"type":"👍","createdAt":"2024-03-01T10:01:00Z"}]},
				{"id":2,"conversationId":42,"fromUserId":1,"toUserId":7,
				 "content":"hello","sentAt":"2024-03-01T10:02:00Z",
				 "deliveredAt":"2024-03-01T10:02:01Z",
				 "readAt":"2024-03-01T10:03:00Z","reactions":[]}]}`)
		}))
	defer server.Close()

	c := NewClient(server.URL, creds.Static("test-token"))
	page, err := c.GetMessages(context.Background(), 42, 50, 50)
	require.NoError(t, err)
	require.Len(t, page, 2)

	require.Equal(t, int64(1), page[0].ID)
	require.Nil(t, page[0].ReadAt)
	require.Len(t, page[0].Reactions, 1)
	require.Equal(t, "👍", page[0].Reactions[0].Type)

	require.NotNil(t, page[1].DeliveredAt)
	require.NotNil(t, page[1].ReadAt)
	require.Empty(t, page[1].Reactions)
}

// Tests that a success=false envelope is surfaced as a backend Error.
func TestClient_EnvelopeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"success":false,"message":"not your conversation"}`)
		}))
	defer server.Close()

	c := NewClient(server.URL, creds.Static("test-token"))
	_, err := c.GetMessages(context.Background(), 42, 0, 50)
	require.Error(t, err)

	var backendErr *Error
	require.True(t, errors.As(err, &backendErr))
	require.Equal(t, http.StatusForbidden, backendErr.Status)
	require.Equal(t, "not your conversation", backendErr.Message)
}

// Tests that a non-JSON error response still produces a backend Error with
// the HTTP status.
func TestClient_NonJSONFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "upstream unavailable")
		}))
	defer server.Close()

	c := NewClient(server.URL, creds.Static("test-token"))
	_, err := c.GetOrCreateConversation(context.Background(), 7)
	require.Error(t, err)

	var backendErr *Error
	require.True(t, errors.As(err, &backendErr))
	require.Equal(t, http.StatusBadGateway, backendErr.Status)
}

// Tests that SearchContacts builds the expected query.
func TestClient_SearchContacts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/contacts", r.URL.Path)
			require.Equal(t, "smith", r.URL.Query().Get("q"))
			require.Equal(t, "1", r.URL.Query().Get("page"))
			require.Equal(t, "20", r.URL.Query().Get("perPage"))
			fmt.Fprint(w, `{"success":true,"data":[
				{"id":7,"fullName":"Alice Smith","email":"alice@school.edu"}]}`)
		}))
	defer server.Close()

	c := NewClient(server.URL, creds.Static("test-token"))
	contacts, err := c.SearchContacts(context.Background(), "smith", 1, 20)
	require.NoError(t, err)
	require.Equal(t,
		[]Contact{{ID: 7, FullName: "Alice Smith", Email: "alice@school.edu"}},
		contacts)
}

// Tests that a credential provider failure aborts the request.
func TestClient_CredentialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			t.Error("Request should not have been sent.")
		}))
	defer server.Close()

	failing := func() (string, error) { return "", errors.New("vault locked") }
	c := NewClient(server.URL, failing)
	_, err := c.GetOrCreateConversation(context.Background(), 7)
	require.ErrorContains(t, err, "vault locked")
}
