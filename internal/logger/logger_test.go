package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPackageHelpersUseReplacedLogger(t *testing.T) {
	l, logs := TestLogger()
	Replace(l)
	defer Replace(zap.NewNop())

	Info("balance updated", "identity", "42", "delta", "-1.650000000")
	Debug("ignored field count")

	entries := logs.FilterMessage("balance updated").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].ContextMap()["identity"])
	assert.Equal(t, 2, logs.Len())
}

func TestWithIdentity(t *testing.T) {
	ctx, logs := TestContext()
	ctx = WithIdentity(ctx, "alice")

	FromContext(ctx).Warn("low balance")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "alice", logs.All()[0].ContextMap()["identity"])
}

func TestInitWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatledger.log")
	Init(false, Options{Level: "info", File: path, MaxSizeMB: 1})
	defer func() {
		Close()
		Replace(zap.NewNop())
	}()

	Info("started")
	Close()

	assert.FileExists(t, path)
}
