package healthcheck_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/healthcheck"
)

func testSocket(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "hc.sock")
}

func TestServerReleasesWaiterOnReady(t *testing.T) {
	sock := testSocket(t)
	srv := healthcheck.NewServer(sock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Listen(ctx))
	defer srv.Close()

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	srv.NotifyReady()

	buf := make([]byte, 1)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(healthcheck.ReadyMsg), buf[0])
}

func TestWaitReady(t *testing.T) {
	sock := testSocket(t)
	srv := healthcheck.NewServer(sock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Listen(ctx))
	defer srv.Close()

	done := make(chan error, 1)
	go func() { done <- healthcheck.WaitReady(sock, 10*time.Second) }()

	// The waiter should still be parked before readiness.
	select {
	case err := <-done:
		t.Fatalf("WaitReady returned before readiness: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	srv.NotifyReady()
	require.NoError(t, <-done)
}

func TestWaitReadyTimesOutWithoutServer(t *testing.T) {
	err := healthcheck.WaitReady(testSocket(t), 700*time.Millisecond)
	require.Error(t, err)
}

func TestCloseRemovesSocket(t *testing.T) {
	sock := testSocket(t)
	srv := healthcheck.NewServer(sock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Listen(ctx))
	require.NoError(t, srv.Close())

	_, err := os.Stat(sock)
	require.ErrorIs(t, err, os.ErrNotExist)
}
