package availability

import (
	"encoding/json"
	"errors"
	"testing"
)

func mustClock(t *testing.T, s string) WallClock {
	t.Helper()
	c, err := ParseWallClock(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return c
}

func clocks(t *testing.T, values ...string) []WallClock {
	t.Helper()
	out := make([]WallClock, 0, len(values))
	for _, v := range values {
		out = append(out, mustClock(t, v))
	}
	return out
}

func TestParseWallClock(t *testing.T) {
	cases := map[string]int{
		"00:00": 0,
		"09:45": 585,
		"9:05":  545,
		"17:15": 1035,
		"24:00": 1440,
	}
	for in, want := range cases {
		got, err := ParseWallClock(in)
		if err != nil {
			t.Fatalf("ParseWallClock(%q): unexpected error %v", in, err)
		}
		if got.Minutes() != want {
			t.Fatalf("ParseWallClock(%q): expected %d, got %d", in, want, got.Minutes())
		}
	}

	for _, bad := range []string{"", "9", "09:60", "24:01", "25:00", "ab:cd", "09:5", "-1:00"} {
		if _, err := ParseWallClock(bad); !errors.Is(err, ErrInvalidWallClock) {
			t.Fatalf("ParseWallClock(%q): expected ErrInvalidWallClock, got %v", bad, err)
		}
	}
}

func TestWallClockJSON(t *testing.T) {
	b, err := json.Marshal([]WallClock{mustClock(t, "09:00"), mustClock(t, "17:15")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["09:00","17:15"]` {
		t.Fatalf("unexpected json %s", b)
	}

	var back []WallClock
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back) != 2 || back[1].String() != "17:15" {
		t.Fatalf("unexpected round trip %v", back)
	}
}
