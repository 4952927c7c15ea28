////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package unread

import "testing"

// Tests the counting rules: messages to the current user count, the user's
// own echoes do not, and messages not addressed to the user do not.
func TestTracker_Observe(t *testing.T) {
	tr := NewTracker(1)

	tr.Observe(7, 1)
	tr.Observe(7, 1)
	tr.Observe(9, 1)
	tr.Observe(1, 7) // Own send echo.
	tr.Observe(9, 5) // Not addressed to us.

	if got := tr.Count(7); got != 2 {
		t.Errorf("Unexpected count for peer 7.\nexpected: %d\nreceived: %d",
			2, got)
	}
	if got := tr.Count(9); got != 1 {
		t.Errorf("Unexpected count for peer 9.\nexpected: %d\nreceived: %d",
			1, got)
	}
	if got := tr.Count(1); got != 0 {
		t.Errorf("Own user should have no count; received %d", got)
	}
}

// Tests that the selected peer never accumulates unread and that selecting
// a peer clears any count it had.
func TestTracker_Select(t *testing.T) {
	tr := NewTracker(1)

	tr.Observe(9, 1)
	tr.Select(7)
	tr.Observe(7, 1) // On screen; must not count.
	tr.Observe(9, 1)

	if got := tr.Count(7); got != 0 {
		t.Errorf("Selected peer accumulated %d unread.", got)
	}
	if got := tr.Count(9); got != 2 {
		t.Errorf("Unexpected count for peer 9.\nexpected: %d\nreceived: %d",
			2, got)
	}

	// Selecting peer 9 clears its backlog.
	tr.Select(9)
	if got := tr.Count(9); got != 0 {
		t.Errorf("Selection should have cleared the count; received %d", got)
	}

	// Peer 7 is off screen again and counts.
	tr.Observe(7, 1)
	if got := tr.Count(7); got != 1 {
		t.Errorf("Unexpected count for peer 7.\nexpected: %d\nreceived: %d",
			1, got)
	}
}

// Tests that after Deselect every peer counts again.
func TestTracker_Deselect(t *testing.T) {
	tr := NewTracker(1)
	tr.Select(7)
	tr.Deselect()

	tr.Observe(7, 1)
	if got := tr.Count(7); got != 1 {
		t.Errorf("Unexpected count after deselect.\nexpected: %d\nreceived: %d",
			1, got)
	}
	if got := tr.Selected(); got != 0 {
		t.Errorf("Unexpected selection.\nexpected: %d\nreceived: %d", 0, got)
	}
}

// Tests the snapshot map: nonzero counts only, and mutating the snapshot
// does not touch the tracker.
func TestTracker_Counts(t *testing.T) {
	tr := NewTracker(1)
	tr.Observe(7, 1)
	tr.Observe(9, 1)
	tr.Observe(9, 1)

	counts := tr.Counts()
	if len(counts) != 2 || counts[7] != 1 || counts[9] != 2 {
		t.Errorf("Unexpected snapshot.\nexpected: map[7:1 9:2]\nreceived: %v",
			counts)
	}

	counts[7] = 100
	if got := tr.Count(7); got != 1 {
		t.Errorf("Snapshot mutation leaked into the tracker; received %d", got)
	}

	tr.Clear()
	if len(tr.Counts()) != 0 {
		t.Error("Clear should have emptied all counts.")
	}
}
