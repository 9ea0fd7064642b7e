// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

package shared

import "testing"

func TestHomeTenant(t *testing.T) {
	tests := []struct {
		desc string
		hid  string
		want string
		ok   bool
	}{
		{"well formed", "uid.utid", "utid", true},
		{"uid containing a dot", "a.b.utid", "utid", true},
		{"no separator", "justanid", "", false},
		{"empty", "", "", false},
		{"trailing separator", "uid.", "", false},
		{"leading separator", ".utid", "", false},
	}

	for _, test := range tests {
		got, ok := HomeTenant(test.hid)
		if ok != test.ok {
			t.Errorf("TestHomeTenant(%s): got ok == %v, want %v", test.desc, ok, test.ok)
			continue
		}
		if got != test.want {
			t.Errorf("TestHomeTenant(%s): got %q, want %q", test.desc, got, test.want)
		}
	}
}

func TestAccountKey(t *testing.T) {
	acc := NewAccount("uid.utid", "env", "realm", "lid", "MSSTS", "user@example.com")
	if got, want := acc.Key(), "uid.utid-env-realm"; got != want {
		t.Errorf("TestAccountKey: got %q, want %q", got, want)
	}
}

func TestAccountIsZero(t *testing.T) {
	if !(Account{}).IsZero() {
		t.Errorf("TestAccountIsZero: zero value not detected")
	}
	if NewAccount("uid.utid", "env", "realm", "lid", "MSSTS", "user@example.com").IsZero() {
		t.Errorf("TestAccountIsZero: populated account reported zero")
	}
}
