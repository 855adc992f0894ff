package buyer

import "testing"

func TestParseIntent(t *testing.T) {
	tests := []struct {
		message string
		lastID  uint64
		wantID  uint64
		wantOK  bool
	}{
		{"purchase 2", 0, 2, true},
		{"Please purchase 2 for me", 0, 2, true},
		{"buy 3", 0, 3, true},
		{"I want to buy 14 now", 0, 14, true},
		{"service 1", 0, 1, true},
		{"PURCHASE 5", 0, 5, true},
		{"yes", 4, 4, true},
		{"  YES  ", 4, 4, true},
		{"yes", 0, 0, false},
		{"purchase 0", 0, 0, false},
		{"what services are available?", 0, 0, false},
		{"purchases went up", 0, 0, false},
		{"", 2, 0, false},
	}

	for _, tt := range tests {
		id, ok := ParseIntent(tt.message, tt.lastID)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseIntent(%q, %d) = (%d, %v), want (%d, %v)",
				tt.message, tt.lastID, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestSessionsIsolation(t *testing.T) {
	sessions := NewSessions()

	a := sessions.Get("alice")
	a.LastServiceID = 3
	a.Append("purchase 3", "done")

	b := sessions.Get("bob")
	if b.LastServiceID != 0 {
		t.Errorf("new session inherited LastServiceID = %d", b.LastServiceID)
	}
	if len(b.Turns) != 0 {
		t.Errorf("new session inherited %d turns", len(b.Turns))
	}

	if again := sessions.Get("alice"); again.LastServiceID != 3 {
		t.Errorf("session state lost: LastServiceID = %d, want 3", again.LastServiceID)
	}
}
