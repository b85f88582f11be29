package util

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-10-10T10:10:10Z", time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC), true},
		{"2024-10-10T10:10:10.5+01:00", time.Date(2024, 10, 10, 9, 10, 10, 5e8, time.UTC), true},
		{"2024-06-03 15:30:00", time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC), true},
		{" 2024-02-29 ", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), true},
		{"1717372800", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{"-5", time.Time{}, false},
	}
	for _, c := range cases {
		got, ok := ParseTime(c.in)
		if ok != c.ok || !got.Equal(c.want) {
			t.Fatalf("ParseTime(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestDayDropsClockAndZone(t *testing.T) {
	tunis := time.FixedZone("CET", 3600)
	got := Day(time.Date(2024, 6, 4, 0, 30, 0, 0, tunis))
	if got.Format(DateLayout) != "2024-06-03" || got.Location() != time.UTC {
		t.Fatalf("unexpected day %v", got)
	}
}

func TestTrailingWindow(t *testing.T) {
	from, end := TrailingWindow(time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC), 30)
	if end.Format(DateLayout) != "2024-03-10" || from.Format(DateLayout) != "2024-02-10" {
		t.Fatalf("unexpected window %v..%v", from, end)
	}

	from, end = TrailingWindow(end, 0)
	if !from.Equal(end) {
		t.Fatalf("zero days should cover one day, got %v..%v", from, end)
	}
}

func TestIsMonthEnd(t *testing.T) {
	cases := map[string]bool{
		"2024-02-29": true,
		"2023-02-28": true,
		"2024-02-28": false,
		"2024-12-31": true,
		"2024-06-15": false,
	}
	for in, want := range cases {
		d, _ := time.Parse(DateLayout, in)
		if got := IsMonthEnd(d); got != want {
			t.Fatalf("IsMonthEnd(%s) = %v, want %v", in, got, want)
		}
	}
}
