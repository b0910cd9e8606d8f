package sshclient

import "testing"

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in       string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"h:65535", "h", 65535, false},
		{"h:65536", "", 0, true},
		{"h", "h", 22, false},
		{"[::1]:22", "::1", 22, false},
		{"[::1]", "::1", 22, false},
		{"example.com:2222", "example.com", 2222, false},
		{"", "", 0, true},
		{"h:abc", "", 0, true},
		{"h:0", "", 0, true},
	}
	for _, c := range cases {
		host, port, err := ParseAddress(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseAddress(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddress(%q): unexpected error %v", c.in, err)
			continue
		}
		if host != c.wantHost || port != c.wantPort {
			t.Errorf("ParseAddress(%q) = (%q, %d), want (%q, %d)", c.in, host, port, c.wantHost, c.wantPort)
		}
	}
}
