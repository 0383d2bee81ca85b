package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name          string
		level         string
		format        string
		development   bool
		expectedLevel logrus.Level
		expectJSON    bool
	}{
		{name: "production defaults to json", level: "info", expectedLevel: logrus.InfoLevel, expectJSON: true},
		{name: "development uses text", level: "debug", development: true, expectedLevel: logrus.DebugLevel},
		{name: "development honours LOG_FORMAT", level: "warn", format: "json", development: true, expectedLevel: logrus.WarnLevel, expectJSON: true},
		{name: "invalid level falls back to info", level: "loud", expectedLevel: logrus.InfoLevel, expectJSON: true},
		{name: "case insensitive", level: "ERROR", expectedLevel: logrus.ErrorLevel, expectJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_FORMAT", tt.format)
			Logger = nil

			log := InitLogger(tt.level, tt.development)
			assert.Equal(t, tt.expectedLevel, log.GetLevel())

			_, isJSON := log.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.expectJSON, isJSON)
			assert.Same(t, log, GetLogger())
		})
	}
}

func TestInitLoggerReadsEnvLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	Logger = nil

	log := InitLogger("", false)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}

func TestWithRealization(t *testing.T) {
	Logger = nil
	log := InitLogger("debug", false)

	var buf bytes.Buffer
	log.SetOutput(&buf)

	WithRealization(WithRun("run-1"), 2, 7).Info("outcome done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, float64(2), entry["schedule"])
	assert.Equal(t, float64(7), entry["outcome"])
	assert.Equal(t, "outcome done", entry["msg"])
}

func TestGetLoggerInitialises(t *testing.T) {
	Logger = nil
	first := GetLogger()
	require.NotNil(t, first)
	assert.Same(t, first, GetLogger())
}
