////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// Contact is a user the current user may start a conversation with.
type Contact struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// SearchContacts returns a page of contacts matching the query string. An
// empty query lists all contacts.
func (c *Client) SearchContacts(
	ctx context.Context, q string, page, perPage int) ([]Contact, error) {
	query := url.Values{
		"q":       {q},
		"page":    {strconv.Itoa(page)},
		"perPage": {strconv.Itoa(perPage)},
	}

	var contacts []Contact
	if err := c.get(ctx, "/contacts", query, &contacts); err != nil {
		return nil, errors.WithMessage(err, "could not search contacts")
	}
	return contacts, nil
}
