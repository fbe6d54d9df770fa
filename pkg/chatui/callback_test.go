package chatui

import "testing"

func TestDataSplitRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		ns, action, payload string
		want                string
	}{
		{"roster", "avail", "", "roster:avail"},
		{"remind", "maybe", "-100123", "remind:maybe:-100123"},
		{"remind", "unavail", "a:b", "remind:unavail:a:b"}, // payload keeps ':'
	}
	for _, c := range cases {
		got := Data(c.ns, c.action, c.payload)
		if got != c.want {
			t.Fatalf("Data(%q,%q,%q) = %q", c.ns, c.action, c.payload, got)
		}
		ns, action, payload := Split(got)
		if ns != c.ns || action != c.action || payload != c.payload {
			t.Fatalf("Split(%q) = %q,%q,%q", got, ns, action, payload)
		}
	}
}

func TestSplitDegenerate(t *testing.T) {
	t.Parallel()
	ns, action, payload := Split("lonely")
	if ns != "lonely" || action != "" || payload != "" {
		t.Fatalf("Split = %q,%q,%q", ns, action, payload)
	}
}
