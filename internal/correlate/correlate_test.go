package correlate

import (
	"context"
	"errors"
	"testing"

	"github.com/Hara602/usbAudit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func snapshot(lines ...string) model.ConnectionSnapshot {
	return model.NewSnapshot(lines)
}

func TestDiffSelfIsEmpty(t *testing.T) {
	for _, s := range []model.ConnectionSnapshot{
		snapshot(),
		snapshot("tcp 0 0 1.2.3.4.80 5.6.7.8.9999 ESTABLISHED"),
		snapshot("a", "b", "c"),
	} {
		assert.Empty(t, Diff(s, s))
	}
}

func TestDiffUnionReturnsAddition(t *testing.T) {
	a := snapshot("tcp 0 0 1.2.3.4.80 5.6.7.8.9999 ESTABLISHED", "udp 0 0 1.2.3.4.53 8.8.8.8.53")
	b := snapshot("tcp 0 0 1.2.3.4.443 9.9.9.9.1111 ESTABLISHED")

	union := a.Clone()
	for r := range b {
		union[r] = struct{}{}
	}

	assert.Equal(t, b, Diff(a, union))
}

func TestDiffIgnoresClosedConnections(t *testing.T) {
	prev := snapshot("tcp 0 0 1.2.3.4.80 5.6.7.8.9999 ESTABLISHED")
	next := snapshot("tcp 0 0 1.2.3.4.443 9.9.9.9.1111 ESTABLISHED")

	got := Diff(prev, next)
	assert.Equal(t, 1, got.Len())
	assert.True(t, got.Has("tcp 0 0 1.2.3.4.443 9.9.9.9.1111 ESTABLISHED"))
}

type fakeResolver struct {
	hosts     map[string]string
	owners    map[string]string
	ownerErrs map[string]error
	lookups   []string
}

func (f *fakeResolver) ResolveHostname(_ context.Context, ip string) (string, error) {
	if h, ok := f.hosts[ip]; ok {
		return h, nil
	}
	return "", errors.New("NXDOMAIN")
}

func (f *fakeResolver) ResolveOwningProcess(_ context.Context, ip string) (string, error) {
	f.lookups = append(f.lookups, ip)
	if err, ok := f.ownerErrs[ip]; ok {
		return "", err
	}
	return f.owners[ip], nil
}

func TestAttributeFlagsUnownedConnection(t *testing.T) {
	r := &fakeResolver{}
	a := NewAttributor(r, zap.NewNop())

	res := a.Attribute(context.Background(), snapshot("tcp 0 0 1.2.3.4.443 9.9.9.9.1111 ESTABLISHED"))

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, model.KindUnattributedConnection, res.Alerts[0].Kind)
	assert.Contains(t, res.Alerts[0].Message, "9.9.9.9")
	require.Len(t, res.Attributions, 1)
	assert.Equal(t, NoReverseDNS, res.Attributions[0].Hostname)
}

func TestAttributeOneAlertPerUnownedConnection(t *testing.T) {
	r := &fakeResolver{
		hosts:  map[string]string{"17.1.1.1": "apple.com."},
		owners: map[string]string{"17.1.1.1": "apsd 123 user 5u IPv4 TCP 10.0.0.2:5000->17.1.1.1:5223"},
	}
	a := NewAttributor(r, zap.NewNop())

	res := a.Attribute(context.Background(), snapshot(
		"tcp 0 0 10.0.0.2.5000 17.1.1.1.5223 ESTABLISHED",
		"tcp 0 0 10.0.0.2.5001 9.9.9.9.1111 ESTABLISHED",
		"tcp 0 0 10.0.0.2.5002 8.8.4.4.53 ESTABLISHED",
	))

	require.Len(t, res.Alerts, 2)
	assert.Contains(t, res.Alerts[0].Message, "9.9.9.9")
	assert.Contains(t, res.Alerts[1].Message, "8.8.4.4")
	require.Len(t, res.Attributions, 3)
	assert.Equal(t, "apple.com.", res.Attributions[0].Hostname)
	assert.NotEmpty(t, res.Attributions[0].Process)
}

func TestAttributeLookupFailureIsNotAnAlert(t *testing.T) {
	r := &fakeResolver{ownerErrs: map[string]error{"9.9.9.9": errors.New("lsof: not found")}}
	a := NewAttributor(r, zap.NewNop())

	res := a.Attribute(context.Background(), snapshot("tcp 0 0 1.2.3.4.443 9.9.9.9.1111 ESTABLISHED"))

	assert.Empty(t, res.Alerts)
	require.Len(t, res.Attributions, 1)
	assert.Error(t, res.Attributions[0].Err)
}

func TestAttributeSkipsMalformedAndListening(t *testing.T) {
	r := &fakeResolver{}
	a := NewAttributor(r, zap.NewNop())

	res := a.Attribute(context.Background(), snapshot(
		"Active Internet connections",
		"tcp4 0 0 *.22 *.* LISTEN",
		"tcp 0 0 1.2.3.4.443 9.9.9.9.1111 ESTABLISHED",
	))

	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Alerts, 1)
	assert.Equal(t, []string{"9.9.9.9"}, r.lookups)
}
