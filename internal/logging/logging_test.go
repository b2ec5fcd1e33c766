package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamic-pricing-ledger/internal/config"
)

func TestNewPrefix(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "protocol").Println("initialized")

	assert.Contains(t, buf.String(), "[protocol] ")
	assert.Contains(t, buf.String(), "initialized")
	assert.Contains(t, buf.String(), "logging_test.go")
}

func TestOutputStdout(t *testing.T) {
	assert.Equal(t, os.Stdout, Output(config.LoggingConfig{}))
}

func TestOutputRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")
	out := Output(config.LoggingConfig{File: path, MaxSizeMB: 1})

	New(out, "server").Println("listening")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[server] ")
	assert.Contains(t, string(data), "listening")
}
