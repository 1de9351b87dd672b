package model

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRecordParse(t *testing.T) {
	tests := []struct {
		name       string
		record     string
		wantRemote string
		wantPort   uint16
		wantState  string
	}{
		{
			name:       "bsd dotted form",
			record:     "tcp 0 0 1.2.3.4.443 9.9.9.9.1111 ESTABLISHED",
			wantRemote: "9.9.9.9",
			wantPort:   1111,
			wantState:  "ESTABLISHED",
		},
		{
			name:       "colon form",
			record:     "tcp 0 0 10.0.0.2:51234 93.184.216.34:443 ESTABLISHED",
			wantRemote: "93.184.216.34",
			wantPort:   443,
			wantState:  "ESTABLISHED",
		},
		{
			name:       "bracketed ipv6",
			record:     "tcp6 0 0 [::1]:5000 [2001:db8::1]:443 SYN_SENT",
			wantRemote: "2001:db8::1",
			wantPort:   443,
			wantState:  "SYN_SENT",
		},
		{
			name:       "bsd ipv6 with zone",
			record:     "udp6 0 0 fe80::1%lo0.5353 fe80::2%lo0.5353",
			wantRemote: "fe80::2%lo0",
			wantPort:   5353,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := ConnectionRecord(tt.record).Parse()
			require.NoError(t, err)
			assert.Equal(t, netip.MustParseAddr(tt.wantRemote), conn.Remote.Addr)
			assert.Equal(t, tt.wantPort, conn.Remote.Port)
			assert.Equal(t, tt.wantState, conn.State)
		})
	}
}

func TestConnectionRecordParseNoRemote(t *testing.T) {
	for _, rec := range []string{
		"tcp4 0 0 *.22 *.* LISTEN",
		"tcp 0 0 0.0.0.0:22 0.0.0.0:0 LISTEN",
	} {
		_, err := ConnectionRecord(rec).Parse()
		assert.ErrorIs(t, err, ErrNoRemote, rec)
	}
}

func TestConnectionRecordParseMalformed(t *testing.T) {
	for _, rec := range []string{
		"Active Internet connections (including servers)",
		"Proto Recv-Q Send-Q  Local Address          Foreign Address        (state)",
		"tcp 0 0 1.2.3.4.80",
		"tcp 0 0 1.2.3.4.80 not-an-ip.99 ESTABLISHED",
		"tcp 0 0 1.2.3.4.80 9.9.9.9.99999 ESTABLISHED",
	} {
		_, err := ConnectionRecord(rec).Parse()
		var perr *ParseError
		require.True(t, errors.As(err, &perr), "expected ParseError for %q, got %v", rec, err)
		assert.Equal(t, rec, perr.Record)
	}
}

func TestNewSnapshotDedups(t *testing.T) {
	s := NewSnapshot([]string{
		"tcp 0 0 1.2.3.4.80 5.6.7.8.9999 ESTABLISHED",
		"tcp 0 0 1.2.3.4.80 5.6.7.8.9999 ESTABLISHED",
		"",
		"   ",
		"udp 0 0 1.2.3.4.53 8.8.8.8.53\r",
	})

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("udp 0 0 1.2.3.4.53 8.8.8.8.53"))
	assert.Equal(t, []ConnectionRecord{
		"tcp 0 0 1.2.3.4.80 5.6.7.8.9999 ESTABLISHED",
		"udp 0 0 1.2.3.4.53 8.8.8.8.53",
	}, s.Records())

	c := s.Clone()
	delete(c, "udp 0 0 1.2.3.4.53 8.8.8.8.53")
	assert.Equal(t, 2, s.Len())
}
