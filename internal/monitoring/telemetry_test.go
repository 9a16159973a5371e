package monitoring

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_WritesRequestEventsAsJSONL(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "telemetry.jsonl")

	tr, err := NewTracker(TelemetryConfig{Enabled: true, LogPath: logPath})
	require.NoError(t, err)

	tr.RecordRequest(&RequestEvent{RequestID: "req-1", Method: "POST", Path: "/generate", StatusCode: 200, Success: true})
	tr.RecordRequest(&RequestEvent{RequestID: "req-2", Method: "POST", Path: "/chat", StatusCode: 500})
	require.NoError(t, tr.Close())

	f, err := os.Open(logPath) // #nosec G304
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj), "every line must be standalone JSON")
		lines = append(lines, obj)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "/chat", lines[1]["path"])
	assert.Equal(t, float64(500), lines[1]["status_code"])
}

func TestTracker_InitEventsGoToDedicatedFile(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker(TelemetryConfig{Enabled: true, LogPath: filepath.Join(dir, "telemetry.jsonl")})
	require.NoError(t, err)

	tr.RecordInit(&InitEvent{Timestamp: time.Now(), Event: "gateway_start", ServerPort: 8000})

	data, err := os.ReadFile(filepath.Join(dir, "init.jsonl")) // #nosec G304
	require.NoError(t, err)
	assert.Contains(t, string(data), `"gateway_start"`)

	// Init events stay out of the request log.
	reqData, err := os.ReadFile(filepath.Join(dir, "telemetry.jsonl")) // #nosec G304
	require.NoError(t, err)
	assert.NotContains(t, string(reqData), "gateway_start")
}

func TestTracker_DisabledIsInert(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "telemetry.jsonl")

	tr, err := NewTracker(TelemetryConfig{Enabled: false, LogPath: logPath})
	require.NoError(t, err)

	tr.RecordRequest(&RequestEvent{RequestID: "req-1"})
	tr.RecordSession(&SessionEvent{})
	tr.RecordInit(&InitEvent{Event: "gateway_start"})
	require.NoError(t, tr.Close())

	_, err = os.Stat(logPath)
	assert.True(t, os.IsNotExist(err), "disabled tracker must create no files")
}
