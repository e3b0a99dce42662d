// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import "testing"

func TestNewEntry_GeneratesUniqueEntryIDs(t *testing.T) {
	msg := "hi"
	first := NewEntry(3, &msg, ThisOrigin())
	second := NewEntry(3, &msg, ThisOrigin())

	if first.EntryID == second.EntryID {
		t.Error("NewEntry() produced the same entry id twice")
	}

	if first.ID != 3 || second.ID != 3 {
		t.Errorf("NewEntry() did not preserve the identifier")
	}

	if *first.Msg != "hi" {
		t.Errorf("NewEntry() Msg = %q, want %q", *first.Msg, "hi")
	}
}

func TestEntry_Equal(t *testing.T) {
	msg := "x"
	e1 := NewEntry(1, &msg, Origin{})
	e2 := e1
	e3 := NewEntry(1, &msg, Origin{})

	tests := []struct {
		name string
		a, b Entry[int, string]
		want bool
	}{
		{name: "same value is equal", a: e1, b: e2, want: true},
		{name: "same id distinct entry id is not equal", a: e1, b: e3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_NilMessage(t *testing.T) {
	entry := NewEntry[int, string](1, nil, Origin{})
	if entry.Msg != nil {
		t.Error("NewEntry() with nil msg should leave Msg nil")
	}
}
