package remote

import "testing"

func TestRepliesReceived(t *testing.T) {
	cases := []struct {
		output string
		want   int
	}{
		{"1 packets transmitted, 1 received, 0% packet loss, time 0ms", 1},
		{"1 packets transmitted, 0 received, 100% packet loss, time 0ms", 0},
		{"1 packets transmitted, 1 packets received, 0.0% packet loss", 1},
		{"ping: unknown host pi9.wifi.etsu.edu", -1},
	}
	for _, tc := range cases {
		if got := RepliesReceived(tc.output); got != tc.want {
			t.Fatalf("RepliesReceived(%q): expected %d, got %d", tc.output, tc.want, got)
		}
	}
}

func TestFirstAddressSkipsCNAME(t *testing.T) {
	out := "pi1.campus.example.\n10.0.4.21\n10.0.4.22\n"
	if got := firstAddress(out); got != "10.0.4.21" {
		t.Fatalf("expected first A record, got %q", got)
	}
	if got := firstAddress(""); got != "" {
		t.Fatalf("expected empty address, got %q", got)
	}
}
