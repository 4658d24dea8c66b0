package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	out, level, formatter := std.Out, std.GetLevel(), std.Formatter
	t.Cleanup(func() {
		std.SetOutput(out)
		std.SetLevel(level)
		std.SetFormatter(formatter)
	})

	var buf bytes.Buffer
	Setup("debug", "json", &buf)
	return &buf
}

func TestLogger_ErrWrapsCause(t *testing.T) {
	buf := captureLogs(t)
	cause := errors.New("connection refused")

	err := New("database").Function("New").Err("failed to open database", cause, "dbPath", "/tmp/x.db")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to open database: connection refused", err.Error())
	assert.Contains(t, buf.String(), `"package":"database"`)
	assert.Contains(t, buf.String(), `"function":"New"`)
	assert.Contains(t, buf.String(), `"dbPath":"/tmp/x.db"`)
}

func TestLogger_ErrorReturnsMessage(t *testing.T) {
	captureLogs(t)

	err := New("database").Error("database path is empty", "dbPath", "")
	assert.EqualError(t, err, "database path is empty")

	err = New("app").ErrMsg("nil check failed")
	assert.EqualError(t, err, "nil check failed")
}

func TestLogger_FileAndFunctionDoNotMutateParent(t *testing.T) {
	buf := captureLogs(t)

	parent := New("handlers")
	child := parent.File("user_handler").Function("insertUsers")
	parent.Info("parent message")

	assert.NotContains(t, buf.String(), "user_handler")
	child.Info("child message")
	assert.Contains(t, buf.String(), `"file":"user_handler"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestLogger_LevelFiltersEntries(t *testing.T) {
	buf := captureLogs(t)
	Setup("warn", "json", buf)

	log := New("batch").Function("Run")
	log.Info("chunk completed")
	log.Debug("chunk timing")
	assert.Empty(t, buf.String())

	log.Warn("cursor close failed", "backend", "mongo")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "cursor close failed", entry["msg"])
	assert.Equal(t, "mongo", entry["backend"])
}

func TestLogger_WithAndPrintf(t *testing.T) {
	buf := captureLogs(t)

	log := New("gorm").With("dialect", "sqlite", "dangling")
	log.Printf("slow query %dms", 1200)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "slow query 1200ms", entry["msg"])
	assert.Equal(t, "sqlite", entry["dialect"])
	assert.Equal(t, "dangling", entry["!BADKEY"])
	assert.Equal(t, "gorm", entry["package"])
}

func TestSetup_TextFormat(t *testing.T) {
	buf := captureLogs(t)
	Setup("info", "text", buf)

	New("app").Info("ready", "port", 3000)
	assert.Contains(t, buf.String(), "msg=ready")
	assert.Contains(t, buf.String(), "port=3000")
	assert.Contains(t, buf.String(), "package=app")
}
