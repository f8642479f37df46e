package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	container "github.com/inference-gateway/chatledger/internal/container"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

type cannedAI struct{}

func (cannedAI) Complete(_ context.Context, model string, _ []domain.ChatTurn, question string) (*domain.Completion, error) {
	return &domain.Completion{
		Content: "canned answer",
		Usage:   &domain.Usage{PromptTokens: 500, CompletionTokens: 500, TotalTokens: 1000},
	}, nil
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`storage:
  type: sqlite
  sqlite:
    path: %s
admin:
  identities:
    - "9000"
logging:
  level: error
`, filepath.Join(dir, "ledger.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	containerOptions = []container.Option{container.WithAIClient(cannedAI{})}
	t.Cleanup(func() { containerOptions = nil })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "chatledger version")
}

func TestBillingWorkflow(t *testing.T) {
	path := writeTestConfig(t)

	out, err := run(t, path, "models", "add", "gpt-4o", "1", "2", "general", "purpose")
	require.NoError(t, err)
	assert.Contains(t, out, "Added model gpt-4o")
	assert.Contains(t, out, "3.850000000")

	out, err = run(t, path, "recharge", "42", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Recharged 42: +10.000000000 CA")

	out, err = run(t, path, "chat", "send", "--as", "42", "/chat", "gpt-4o", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "canned answer")

	out, err = run(t, path, "balance", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "8.350000000")
	assert.Contains(t, out, "chat usage - model: gpt-4o")

	out, err = run(t, path, "ledger", "verify", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")

	out, err = run(t, path, "history", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "Q: hello")

	out, err = run(t, path, "billing", "dead-letters")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending dead letters")

	out, err = run(t, path, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")
}

func TestModelStatusCommand(t *testing.T) {
	path := writeTestConfig(t)

	_, err := run(t, path, "models", "add", "gpt-4o", "1", "2")
	require.NoError(t, err)

	out, err := run(t, path, "models", "status", "gpt-4o", "disabled")
	require.NoError(t, err)
	assert.Contains(t, out, "Model gpt-4o is now disabled")

	out, err = run(t, path, "models", "list", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "[]")

	_, err = run(t, path, "models", "status", "gpt-4o", "sleeping")
	assert.Error(t, err)
}

func TestBalanceUnknownUser(t *testing.T) {
	path := writeTestConfig(t)
	_, err := run(t, path, "balance", "404")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
