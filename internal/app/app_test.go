package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
)

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := LoadConfig(home, "")
	require.NoError(t, err)
	require.Equal(t, home, cfg.Home)
	require.Equal(t, 4*time.Second, cfg.PollInterval)
	require.Equal(t, filepath.Join(home, "db"), cfg.DBPath)
	require.Empty(t, cfg.RelayURL)
}

func TestLoadConfig_File(t *testing.T) {
	home := t.TempDir()
	conf := `relay = "http://127.0.0.1:8080"
pollinterval = "250ms"
logfile = "logs/closedgroups.log"
debuglevel = "debug,POLL=trace"
dispatchconcurrency = 3
`
	require.NoError(t, os.WriteFile(filepath.Join(home, ConfigFilename), []byte(conf), 0o600))

	cfg, err := LoadConfig(home, "")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080", cfg.RelayURL)
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	require.Equal(t, filepath.Join(home, "logs", "closedgroups.log"), cfg.LogFile)
	require.Equal(t, "debug,POLL=trace", cfg.DebugLevel)
	require.Equal(t, 3, cfg.DispatchConcurrency)
}

func TestLoadConfig_Invalid(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "bad.conf")
	require.NoError(t, os.WriteFile(path, []byte(`pollinterval = "soon"`), 0o600))
	_, err := LoadConfig(home, path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`relay = `), 0o600))
	_, err = LoadConfig(home, path)
	require.Error(t, err)
}

func TestLogBackend_Levels(t *testing.T) {
	var buf bytes.Buffer
	logs, err := NewLogBackend("", "warn,POLL=debug", &buf)
	require.NoError(t, err)

	logs.Logger(SubsysLifecycle).Infof("hidden")
	logs.Logger(SubsysPoller).Debugf("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "[DBG] POLL: shown")
	require.Equal(t, logs.Logger(SubsysPoller), logs.Logger(SubsysPoller))

	_, err = NewLogBackend("", "loud", &buf)
	require.Error(t, err)
	_, err = NewLogBackend("", "a=b=c", &buf)
	require.Error(t, err)
}

func TestLogBackend_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	logs, err := NewLogBackend(path, "info", nil)
	require.NoError(t, err)
	logs.Logger(SubsysStore).Infof("to file")
	require.NoError(t, logs.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "STOR: to file")
}

func TestNewWire_NoRelay(t *testing.T) {
	home := t.TempDir()
	cfg := DefaultConfig(home)
	logs, err := NewLogBackend("", "off", nil)
	require.NoError(t, err)

	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	var out bytes.Buffer
	w, err := NewWire(cfg, domain.Identity{XPub: pub, XPriv: priv}, logs, NewPrinter(&out))
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Groups.CreateGroup(context.Background(), "solo", nil)
	require.NoError(t, err)
	groups, err := w.Groups.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Contains(t, out.String(), "created")

	err = w.Sender.SendText(context.Background(), groups[0].PublicKey, "hi")
	require.ErrorIs(t, err, ErrNoRelay)
	require.ErrorIs(t, w.Poller.PollOnce(context.Background()), ErrNoRelay)
}

func TestWire_StopAfterInterruptThenClose(t *testing.T) {
	home := t.TempDir()
	cfg := DefaultConfig(home)
	cfg.PollInterval = 5 * time.Millisecond
	logs, err := NewLogBackend("", "off", nil)
	require.NoError(t, err)

	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	w, err := NewWire(cfg, domain.Identity{XPub: pub, XPriv: priv}, logs, NewPrinter(&bytes.Buffer{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Poller.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	w.Poller.Stop()
	require.False(t, w.Poller.IsRunning())

	require.NoError(t, w.Close())
}
