package loomsync_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loomsync"
	"github.com/loomhq/loomsync/pkg/logger"
	logslog "github.com/loomhq/loomsync/pkg/logger/slog"
	"github.com/loomhq/loomsync/pkg/store"
)

const testSecret = "test-secret"

func testToken(t *testing.T, uid, email string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": uid,
		"email":   email,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func discardLogger() logger.Logger {
	return logslog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient opens a signed-in session for uid/email on the shared
// in-memory store. Each client gets its own durable-state file, as each
// device would.
func newTestClient(t *testing.T, st store.Store, uid, email string) *loomsync.Client {
	t.Helper()

	cfg := loomsync.Config{
		Token:       testToken(t, uid, email),
		TokenSecret: testSecret,
		StatePath:   filepath.Join(t.TempDir(), "state.json"),
	}
	c, err := loomsync.NewWithStore(st, cfg, discardLogger())
	require.NoError(t, err)

	signedIn, err := c.Identity().Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, signedIn)
	return c
}

func newSignedOutClient(t *testing.T, st store.Store) *loomsync.Client {
	t.Helper()

	cfg := loomsync.Config{StatePath: filepath.Join(t.TempDir(), "state.json")}
	c, err := loomsync.NewWithStore(st, cfg, discardLogger())
	require.NoError(t, err)

	signedIn, err := c.Identity().Initialize(context.Background())
	require.NoError(t, err)
	require.False(t, signedIn)
	return c
}
