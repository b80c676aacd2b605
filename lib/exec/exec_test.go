package exec

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	res, err := Run(context.Background(), "echo hello", time.Second, true, false)
	require.NoError(t, err)
	require.Equal(t, []string{"hello"}, res.Stdout)
	require.Zero(t, res.ExitCode)
}

func TestRunTimesOut(t *testing.T) {
	_, err := Run(context.Background(), "sleep 2", 50*time.Millisecond, true, false)
	require.Error(t, err)
}

func TestRunStrictModeFailsOnNonZeroExit(t *testing.T) {
	_, err := Run(context.Background(), "exit 7", time.Second, true, true)
	require.Error(t, err)
}

func TestRunNonStrictReturnsExitCode(t *testing.T) {
	res, err := Run(context.Background(), "exit 3", time.Second, true, false)
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
}

func TestStreamWritesLinesAsTheyArrive(t *testing.T) {
	w := httptest.NewRecorder()
	err := Stream(context.Background(), "echo one; echo two", 2*time.Second, true, w)
	require.NoError(t, err)
	require.Equal(t, "one\ntwo\n", w.Body.String())
	require.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestStreamTimesOut(t *testing.T) {
	w := httptest.NewRecorder()
	err := Stream(context.Background(), "sleep 2", 50*time.Millisecond, true, w)
	require.Error(t, err)
}
