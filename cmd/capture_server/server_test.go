package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rtsforge/capturepoint/internal/config"
	"github.com/rtsforge/capturepoint/internal/handlers"
	"github.com/rtsforge/capturepoint/internal/processor"
	"github.com/rtsforge/capturepoint/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenario = `
# one unit walks into alpha and holds it
:INIT:|op_test|riverlands|authority
:ZONE:REGISTER:|alpha|100|100|0|50|50|5|5|1|gold|2
:UNIT:STATE:|u1|100|100|0|1|true|combat
:WAIT:|6
:SNAPSHOT:|alpha
:WAIT:|2
:BALANCE:|1|gold
:END:
`

func newTestServer(t *testing.T, set map[string]any) (*server, *bytes.Buffer, string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults()

	dir := t.TempDir()
	viper.Set("logsDir", dir)
	viper.Set("storage.memory.outputDir", filepath.Join(dir, "matches"))
	viper.Set("storage.memory.compressOutput", false)
	for k, v := range set {
		viper.Set(k, v)
	}

	var out bytes.Buffer
	srv, err := newServer(serverOptions{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ZLog:           zerolog.Nop(),
		Out:            &out,
		LogsDir:        dir,
		Capture:        config.GetCaptureConfig(),
		Ticking:        config.GetTickingConfig(),
		Storage:        config.GetStorageConfig(),
		Influx:         config.GetInfluxConfig(),
		Upload:         config.GetUploadConfig(),
		StatusInterval: config.GetDuration("statusInterval"),
	})
	require.NoError(t, err)
	t.Cleanup(srv.shutdown)
	return srv, &out, dir
}

func replies(out string) map[string]string {
	got := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		n, reply, ok := strings.Cut(line, " ")
		if ok {
			got[n] = reply
		}
	}
	return got
}

func TestReplayCapturesAndExports(t *testing.T) {
	srv, out, dir := newTestServer(t, nil)

	var replyOut bytes.Buffer
	require.NoError(t, srv.replay(context.Background(), strings.NewReader(scenario), &replyOut))

	got := replies(replyOut.String())
	assert.Equal(t, `["ok", "deferred"]`, got["3"])

	snapReply := got["7"]
	require.True(t, strings.HasPrefix(snapReply, `["ok", "`), snapReply)
	body := strings.TrimSuffix(strings.TrimPrefix(snapReply, `["ok", "`), `"]`)
	var snap core.ZoneSnapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Equal(t, core.TeamID(1), snap.OwningTeam)
	assert.True(t, snap.Captured())

	assert.Contains(t, got, "9")
	assert.NotContains(t, got["9"], "error")

	assert.False(t, srv.matchCtx.Active())
	assert.Contains(t, out.String(), `":EXPORT:"`)

	matches, err := filepath.Glob(filepath.Join(dir, "matches", "op_test_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var export struct {
		MapName string `json:"mapName"`
		Zones   []struct {
			ID         string `json:"id"`
			FinalOwner int    `json:"finalOwner"`
		} `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(raw, &export))
	assert.Equal(t, "riverlands", export.MapName)
	require.Len(t, export.Zones, 1)
	assert.Equal(t, "alpha", export.Zones[0].ID)
	assert.Equal(t, 1, export.Zones[0].FinalOwner)
}

func TestReplayUploadsExport(t *testing.T) {
	type form struct{ match, tag string }
	received := make(chan form, 1)
	results := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/matches/add" && r.ParseMultipartForm(10<<20) == nil {
			received <- form{r.FormValue("matchName"), r.FormValue("tag")}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer results.Close()

	srv, out, _ := newTestServer(t, map[string]any{
		"upload.enabled":   true,
		"upload.serverUrl": results.URL,
		"upload.tag":       "league",
	})
	require.NoError(t, srv.replay(context.Background(), strings.NewReader(scenario), nil))
	srv.uploads.Wait()

	require.Len(t, received, 1)
	got := <-received
	assert.Equal(t, "op_test", got.match)
	assert.Equal(t, "league", got.tag)
	assert.Contains(t, out.String(), `":UPLOADED:"`)
}

func TestReplayErrors(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	err := srv.replay(context.Background(), strings.NewReader(":WAIT:\n"), nil)
	assert.ErrorContains(t, err, "line 1")

	err = srv.replay(context.Background(), strings.NewReader(":WAIT:|soon\n"), nil)
	assert.Error(t, err)

	err = srv.replay(context.Background(), strings.NewReader("[\"broken\"\n"), nil)
	assert.Error(t, err)
}

func TestReplayAppliesLayout(t *testing.T) {
	layoutPath := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(layoutPath, []byte(`
map: riverlands
zones:
  - id: ford
    location: {x: 0, y: 0, z: 0}
    captureRadius: 30
    startRadius: 30
  - id: mill
    ticking: true
    location: {x: 500, y: 0, z: 0}
    captureRadius: 40
`), 0o644))

	srv, _, _ := newTestServer(t, map[string]any{"capture.layoutFile": layoutPath})
	require.NoError(t, srv.replay(context.Background(), strings.NewReader(":INIT:|op_layout|Riverlands\n:WAIT:|0.5\n"), nil))

	_, ok := srv.world.Zone("ford")
	assert.True(t, ok, "batched layout zone is registered")
	require.Len(t, srv.processor.Points(), 1)
	assert.Equal(t, core.ZoneID("mill"), srv.processor.Points()[0].ID())

	require.NoError(t, srv.replay(context.Background(), strings.NewReader(":INIT:|op_other|desert\n:WAIT:|0.5\n"), nil))
	assert.Empty(t, srv.processor.Points(), "layout for another map is skipped")
	_, ok = srv.world.Zone("ford")
	assert.False(t, ok)
}

func TestRunServesUntilEOF(t *testing.T) {
	srv, out, _ := newTestServer(t, map[string]any{"statusInterval": "5ms"})

	in := strings.NewReader(":VERSION:\n:INIT:|op_live|riverlands\n")
	require.NoError(t, srv.run(context.Background(), in))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `":EXT:READY:"`)
	assert.Contains(t, lines[1], CurrentExtensionVersion)
	assert.Equal(t, `["ok", "deferred"]`, lines[2])
	assert.True(t, srv.matchCtx.Active(), "the final step drains deferred calls")
}

func TestInfluxBackupWiring(t *testing.T) {
	backupDir := filepath.Join(t.TempDir(), "influx")
	srv, _, _ := newTestServer(t, map[string]any{
		"influx.enabled":   true,
		"influx.host":      "127.0.0.1",
		"influx.port":      "1",
		"influx.backupDir": backupDir,
	})
	require.NotNil(t, srv.influx)
	assert.True(t, srv.dispatcher.HasHandler(":METRIC:"))

	require.NoError(t, srv.replay(context.Background(), strings.NewReader(scenario), nil))
	srv.shutdown()

	files, err := filepath.Glob(filepath.Join(backupDir, "*.log.gz"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ownership,match=op_test,zone=alpha")
}

func TestStorageSelection(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	_, err := srv.createStorageBackend(config.StorageConfig{Type: "carrier-pigeon"})
	assert.Error(t, err)

	backend, err := srv.createStorageBackend(config.StorageConfig{Type: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, backend.Init())
	assert.NoError(t, backend.Close())
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "wss://collector.example/ingest", httpToWS("https://collector.example/ingest/"))
	assert.Equal(t, "ws://localhost:5000", httpToWS("http://localhost:5000"))
	assert.Equal(t, "ws://already", httpToWS("ws://already"))
}

// The server hands its processor to the handlers, which find ticking points
// through it.
var _ handlers.PointFinder = (*processor.Processor)(nil)

func TestTickingConfigFallbacks(t *testing.T) {
	base := tickingConfig(config.TickingConfig{CaptureTime: 20, IdleDecay: true, Overlap: true})
	assert.Equal(t, 20.0, base.CaptureTime)
	assert.True(t, base.IdleDecay)
	assert.True(t, base.Overlap)
	assert.Equal(t, 3, base.MaxCapturingUnits)
}

func TestWriteConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults()

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf))
	assert.Contains(t, buf.String(), "executioninterval: 200ms")
	assert.Contains(t, buf.String(), "type: memory")
}

func TestHostLogCommand(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	assert.Equal(t, `["ok"]`, srv.bridge.Call(":LOG:", []string{"fn_wave", "info", "wave 3|spawned"}))
	assert.Contains(t, srv.bridge.Call(":LOG:", []string{"fn_wave"}), `["error"`)
}
