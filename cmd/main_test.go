package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/internal/dubbing"
	"github.com/MimeLyc/movie-dubber/internal/errs"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParseCommand_NormalizesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.srt")
	require.NoError(t, os.WriteFile(path, []byte("1\n00:00:01,000 --> 00:00:02,500\nHello there\n\n2\n00:00:03,000 --> 00:00:04,000\n42\n"), 0o644))

	out, _, err := execute(t, "", "parse", path)
	require.NoError(t, err)
	assert.Contains(t, out, "00:00:01,000 --> 00:00:02,500\nHello there")
	assert.Contains(t, out, "00:00:03,000 --> 00:00:04,000\n42")
}

func TestParseCommand_ReadsStdinAndDetects(t *testing.T) {
	vtt := "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nThe quick brown fox jumps over the lazy dog\n"
	out, errOut, err := execute(t, vtt, "parse", "--detect")
	require.NoError(t, err)
	assert.Contains(t, out, "00:00:01,000 --> 00:00:02,000")
	assert.Contains(t, errOut, "1 cues")
}

func TestParseCommand_RejectsEmptyInput(t *testing.T) {
	_, _, err := execute(t, "not subtitles", "parse")
	assert.Error(t, err)
}

func TestServeCommand_RequiresBackend(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("BACKEND_URL", "")
	_, _, err := execute(t, "", "serve", "--data-dir", t.TempDir())
	assert.Error(t, err)
}

func TestParseCommand_WritesNextToInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.vtt")
	require.NoError(t, os.WriteFile(path, []byte("WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nHi\n"), 0o644))

	out, _, err := execute(t, "", "parse", "--write", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	written, err := os.ReadFile(filepath.Join(dir, "track.srt"))
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,000\nHi\n\n", string(written))
}

func TestNewApp_RunsWithoutStorage(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	cfg, err := config.NewFromEnv(config.WithBackendURL("http://127.0.0.1:1"), config.WithDataDir(dir))
	require.NoError(t, err)
	cfg.Storage.DBPath = filepath.Join(blocker, "dubber.db")

	ctx := context.Background()
	a, err := newApp(ctx, cfg, "")
	require.NoError(t, err)
	defer a.close()

	assert.Nil(t, a.store)
	assert.True(t, errs.Is(a.audio.Ready(ctx), errs.Unavailable))

	status, err := a.controller.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, dubbing.StateIdle, status.State)

	offset := int64(250)
	_, err = a.controller.Dispatch(ctx, dubbing.Command{Action: dubbing.ActionSetOffset, OffsetMs: &offset})
	require.NoError(t, err)
	status, err = a.controller.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250), status.Settings.SubtitleOffsetMs)
}
