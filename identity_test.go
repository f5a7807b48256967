package loomsync_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loomsync"
	"github.com/loomhq/loomsync/pkg/store"
)

func TestIdentityInitialize(t *testing.T) {
	mem := store.NewMemoryStore()
	c := newTestClient(t, mem, "u1", "a.lee@co.com")

	p := c.Identity().Principal()
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "a.lee@co.com", p.Email)

	select {
	case <-c.Identity().Ready():
	default:
		t.Fatal("ready channel not closed after sign-in")
	}

	token, err := c.Identity().Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestIdentityInitializeOnce(t *testing.T) {
	mem := store.NewMemoryStore()
	c := newTestClient(t, mem, "u1", "a@b.com")

	// The determination is made once per session; later calls return the
	// first result even after SignOut.
	c.Identity().SignOut()
	signedIn, err := c.Identity().Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, signedIn)
	assert.Nil(t, c.Identity().Principal())
}

func TestIdentitySignedOut(t *testing.T) {
	mem := store.NewMemoryStore()
	c := newSignedOutClient(t, mem)

	assert.Nil(t, c.Identity().Principal())

	token, err := c.Identity().Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)

	select {
	case <-c.Identity().Ready():
		t.Fatal("ready must not fire while signed out")
	default:
	}
}

func TestIdentityExpiredToken(t *testing.T) {
	claims := jwt.MapClaims{
		"user_id": "u1",
		"email":   "a@b.com",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	cfg := loomsync.Config{
		Token:       token,
		TokenSecret: testSecret,
		StatePath:   filepath.Join(t.TempDir(), "state.json"),
	}
	c, err := loomsync.NewWithStore(store.NewMemoryStore(), cfg, discardLogger())
	require.NoError(t, err)

	signedIn, err := c.Identity().Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, signedIn)
}

func TestIdentityBadSignature(t *testing.T) {
	claims := jwt.MapClaims{
		"user_id": "u1",
		"email":   "a@b.com",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	cfg := loomsync.Config{
		Token:       token,
		TokenSecret: testSecret,
		StatePath:   filepath.Join(t.TempDir(), "state.json"),
	}
	c, err := loomsync.NewWithStore(store.NewMemoryStore(), cfg, discardLogger())
	require.NoError(t, err)

	signedIn, err := c.Identity().Initialize(context.Background())
	require.NoError(t, err)
	assert.False(t, signedIn)
}

func TestIdentityLastLoginStamp(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	pinned := time.UnixMilli(1700000000000)
	mem.SetClock(func() time.Time { return pinned })

	newTestClient(t, mem, "u1", "a@b.com")

	raw, err := mem.Read(ctx, "users/u1/profile/lastLogin")
	require.NoError(t, err)
	assert.JSONEq(t, `1700000000000`, string(raw))
}

func TestIdentityUpdateProfile(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	c := newTestClient(t, mem, "u1", "a@b.com")

	require.NoError(t, c.Identity().UpdateProfile(ctx, "Ada Lee", "https://img.example/ada.png"))

	profile, err := c.Identity().Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lee", profile.DisplayName)
	assert.Equal(t, "https://img.example/ada.png", profile.PhotoURL)
	assert.Equal(t, "a@b.com", profile.Email)

	// Empty arguments leave stored fields alone.
	require.NoError(t, c.Identity().UpdateProfile(ctx, "", ""))
	profile, err = c.Identity().Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lee", profile.DisplayName)
}

func TestIdentityUpdateProfileUnauthenticated(t *testing.T) {
	c := newSignedOutClient(t, store.NewMemoryStore())
	err := c.Identity().UpdateProfile(context.Background(), "x", "")
	assert.Error(t, err)
}
