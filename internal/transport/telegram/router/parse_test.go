package router

import (
	"testing"
	"time"
)

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want time.Weekday
		ok   bool
	}{
		{"mon", time.Monday, true},
		{"Monday", time.Monday, true},
		{"  THURS ", time.Thursday, true},
		{"sunday", time.Sunday, true},
		{"lundi", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, err := parseWeekday(c.in)
		if c.ok != (err == nil) {
			t.Fatalf("parseWeekday(%q) err = %v", c.in, err)
		}
		if c.ok && got != c.want {
			t.Fatalf("parseWeekday(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		h, m int
		ok   bool
	}{
		{"09:00", 9, 0, true},
		{"9:05", 9, 5, true},
		{"23:59", 23, 59, true},
		{"0:00", 0, 0, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"noon", 0, 0, false},
		{"12", 0, 0, false},
		{"-1:30", 0, 0, false},
	}
	for _, c := range cases {
		h, m, err := parseHHMM(c.in)
		if c.ok != (err == nil) {
			t.Fatalf("parseHHMM(%q) err = %v", c.in, err)
		}
		if c.ok && (h != c.h || m != c.m) {
			t.Fatalf("parseHHMM(%q) = %d:%d, want %d:%d", c.in, h, m, c.h, c.m)
		}
	}
}
