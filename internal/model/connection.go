package model

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"strings"
)

// ErrNoRemote marks a well-formed record without a concrete remote peer
// (listening sockets, "*.*" wildcards).
var ErrNoRemote = errors.New("connection has no remote endpoint")

// ParseError reports a connection record that does not have the
// "<proto> <recv-q> <send-q> <local> <remote> [state]" shape.
type ParseError struct {
	Record string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed connection record %q: %s", e.Record, e.Reason)
}

// ConnectionRecord is one raw line of a connection table. Records compare by
// exact text.
type ConnectionRecord string

// Endpoint is an address/port pair taken from a connection record.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}

// Connection is the typed view of a ConnectionRecord.
type Connection struct {
	Proto  string
	Local  Endpoint
	Remote Endpoint
	State  string
}

// Parse converts the record into a Connection. The remote endpoint is the
// fifth field. Both the BSD netstat form ("1.2.3.4.443") and the colon form
// ("1.2.3.4:443", "[::1]:443") are accepted.
func (r ConnectionRecord) Parse() (Connection, error) {
	raw := string(r)
	fields := strings.Fields(raw)
	if len(fields) < 5 {
		return Connection{}, &ParseError{Record: raw, Reason: fmt.Sprintf("expected at least 5 fields, got %d", len(fields))}
	}

	proto := strings.ToLower(fields[0])
	if !strings.HasPrefix(proto, "tcp") && !strings.HasPrefix(proto, "udp") {
		return Connection{}, &ParseError{Record: raw, Reason: "unknown protocol " + fields[0]}
	}

	conn := Connection{Proto: proto}
	if len(fields) > 5 {
		conn.State = fields[5]
	}

	local, err := ParseEndpoint(fields[3])
	if err != nil && !errors.Is(err, ErrNoRemote) {
		return Connection{}, &ParseError{Record: raw, Reason: "local endpoint: " + err.Error()}
	}
	conn.Local = local

	remote, err := ParseEndpoint(fields[4])
	if err != nil {
		if errors.Is(err, ErrNoRemote) {
			return conn, ErrNoRemote
		}
		return Connection{}, &ParseError{Record: raw, Reason: "remote endpoint: " + err.Error()}
	}
	if remote.Addr.IsUnspecified() {
		return conn, ErrNoRemote
	}
	conn.Remote = remote
	return conn, nil
}

// ParseEndpoint parses a single endpoint column. Wildcards yield ErrNoRemote.
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}, errors.New("empty endpoint")
	}
	if strings.Contains(s, "*") {
		return Endpoint{}, ErrNoRemote
	}

	if host, port, err := net.SplitHostPort(s); err == nil {
		return endpointFrom(host, port)
	}

	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return Endpoint{}, fmt.Errorf("no port separator in %q", s)
	}
	return endpointFrom(s[:i], s[i+1:])
}

func endpointFrom(host, port string) (Endpoint, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("bad address %q", host)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("bad port %q", port)
	}
	return Endpoint{Addr: addr.Unmap(), Port: uint16(p)}, nil
}

// ConnectionSnapshot is the set of records seen at one instant.
type ConnectionSnapshot map[ConnectionRecord]struct{}

// NewSnapshot builds a snapshot from raw table lines. Blank lines are dropped
// and duplicates collapse.
func NewSnapshot(lines []string) ConnectionSnapshot {
	s := make(ConnectionSnapshot, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		s[ConnectionRecord(line)] = struct{}{}
	}
	return s
}

func (s ConnectionSnapshot) Has(r ConnectionRecord) bool {
	_, ok := s[r]
	return ok
}

func (s ConnectionSnapshot) Len() int { return len(s) }

// Records returns the records in lexical order.
func (s ConnectionSnapshot) Records() []ConnectionRecord {
	out := make([]ConnectionRecord, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s ConnectionSnapshot) Clone() ConnectionSnapshot {
	c := make(ConnectionSnapshot, len(s))
	for r := range s {
		c[r] = struct{}{}
	}
	return c
}
