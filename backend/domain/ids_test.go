package domain

import (
	"testing"
	"time"
)

func TestStableDeviceIDIsDeterministic(t *testing.T) {
	t.Parallel()

	a := StableDeviceID("tok", "Happ/3.7.0/ios")
	b := StableDeviceID(" tok ", "Happ/3.7.0/ios")
	if a != b {
		t.Fatalf("expected same id, got %q and %q", a, b)
	}
	if c := StableDeviceID("tok", "v2rayNG/1.8"); c == a {
		t.Fatalf("expected different id for different user agent")
	}
}

func TestParsePanelUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		id   int64
		want bool
	}{
		{"user_123", 123, true},
		{PanelUsername(987654321), 987654321, true},
		{"user_abc", 0, false},
		{"admin", 0, false},
		{"user_", 0, false},
	}
	for _, tc := range cases {
		id, ok := ParsePanelUsername(tc.in)
		if ok != tc.want || id != tc.id {
			t.Fatalf("%q: expected (%d,%v), got (%d,%v)", tc.in, tc.id, tc.want, id, ok)
		}
	}
}

func TestUserHasSubscriptionAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if (User{}).HasSubscriptionAt(now) {
		t.Fatalf("expected no subscription without expiry")
	}
	if (User{SubscriptionExpires: &past}).HasSubscriptionAt(now) {
		t.Fatalf("expected expired subscription to be invalid")
	}
	if !(User{SubscriptionExpires: &future}).HasSubscriptionAt(now) {
		t.Fatalf("expected future subscription to be valid")
	}
}

func TestTokenHint(t *testing.T) {
	t.Parallel()

	if got := TokenHint("short"); got != "short" {
		t.Fatalf("expected short token unchanged, got %q", got)
	}
	long := "abcdefghijklmnopqrstuvwxyz"
	if got := TokenHint(long); got != "abcdefghijklmnopqrst..." {
		t.Fatalf("expected truncated token, got %q", got)
	}
}
