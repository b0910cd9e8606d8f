package sshclient

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPort is used when address carries no explicit port.
const DefaultPort = 22

// ParseAddress splits a "host[:port]" address into host and port per spec
// §4.4. The port is parsed from the substring after the rightmost ':', so a
// bare host with no colon defaults to 22. Bracketed IPv6 literals
// ("[::1]:22") are recognized explicitly — this shape is not exercised by
// any documented example, but parsing must be total and never panic.
func ParseAddress(address string) (host string, port int, err error) {
	if address == "" {
		return "", 0, fmt.Errorf("ssh: empty address")
	}

	if strings.HasPrefix(address, "[") {
		end := strings.IndexByte(address, ']')
		if end < 0 {
			return "", 0, fmt.Errorf("ssh: invalid address %q: unterminated [", address)
		}
		host = address[1:end]
		rest := address[end+1:]
		if rest == "" {
			return host, DefaultPort, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, fmt.Errorf("ssh: invalid address %q: expected ':port' after ']'", address)
		}
		port, err = parsePort(rest[1:])
		if err != nil {
			return "", 0, err
		}
		return host, port, nil
	}

	idx := strings.LastIndexByte(address, ':')
	if idx < 0 {
		return address, DefaultPort, nil
	}
	host = address[:idx]
	port, err = parsePort(address[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("ssh: invalid port %q", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("ssh: port %d out of range", n)
	}
	return n, nil
}
