////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package emoji

import (
	"github.com/pkg/errors"
)

// The reaction glyphs accepted by the messaging hub. The backend rejects
// anything else, so invocations are validated client-side before they are
// sent.
const (
	ThumbsUp = "👍"
	Heart    = "❤️"
	Joy      = "😂"
	Surprise = "😮"
	Sad      = "😢"
	Angry    = "😡"
)

// supportedReactions contains all reaction glyphs the hub recognises. This
// allows for quick lookup when validating a reaction before invocation.
var supportedReactions = map[string]struct{}{
	ThumbsUp: {},
	Heart:    {},
	Joy:      {},
	Surprise: {},
	Sad:      {},
	Angry:    {},
}

// reactionOrder is the display order used by reaction pickers.
var reactionOrder = []string{ThumbsUp, Heart, Joy, Surprise, Sad, Angry}

// Supported returns the list of reaction glyphs the hub accepts, in display
// order.
func Supported() []string {
	list := make([]string, len(reactionOrder))
	copy(list, reactionOrder)
	return list
}

// IsSupported determines if the glyph is in the supported reaction set.
func IsSupported(glyph string) bool {
	_, exists := supportedReactions[glyph]
	return exists
}

// Validate returns an error if the glyph is not in the supported reaction
// set.
func Validate(glyph string) error {
	if !IsSupported(glyph) {
		return errors.Errorf(
			"unsupported reaction %q; must be one of %v", glyph, reactionOrder)
	}
	return nil
}
