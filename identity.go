package loomsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/loomhq/loomsync/pkg/constants"
	"github.com/loomhq/loomsync/pkg/logger"
	"github.com/loomhq/loomsync/pkg/models"
	"github.com/loomhq/loomsync/pkg/store"
)

// sessionClaims mirrors the HS256 session tokens issued by the auth
// backend: a user id and email with a standard expiry.
type sessionClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity resolves the current authenticated principal from the session
// token and signals the rest of the system once the determination is made.
type Identity struct {
	store store.Store
	log   logger.Logger

	token  string
	secret string

	mu        sync.Mutex
	principal *models.Principal

	initOnce sync.Once
	signedIn bool
	initErr  error

	ready chan struct{}
}

func newIdentity(st store.Store, log logger.Logger, token, secret string) *Identity {
	return &Identity{
		store:  st,
		log:    log,
		token:  token,
		secret: secret,
		ready:  make(chan struct{}),
	}
}

// Initialize makes the signed-in/signed-out determination exactly once per
// Client lifetime and reports whether a principal was resolved. Subsequent
// calls return the first result. On the signed-in transition it closes the
// Ready channel and stamps the profile's lastLogin.
func (id *Identity) Initialize(ctx context.Context) (bool, error) {
	id.initOnce.Do(func() {
		id.signedIn, id.initErr = id.resolve(ctx)
	})
	return id.signedIn, id.initErr
}

func (id *Identity) resolve(ctx context.Context) (bool, error) {
	if id.token == "" {
		return false, nil
	}

	claims, err := id.parseClaims()
	if err != nil {
		id.log.Warn("session token rejected", "error", err)
		return false, nil
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		id.log.Info("session token expired")
		return false, nil
	}
	if claims.UserID == "" {
		return false, fmt.Errorf("%w: token carries no user id", constants.ErrInvalidArgument)
	}

	principal := &models.Principal{ID: claims.UserID, Email: claims.Email}

	id.mu.Lock()
	id.principal = principal
	id.mu.Unlock()

	lastLoginPath := store.Join(store.UserProfilePath(principal.ID), "lastLogin")
	if err := id.store.Write(ctx, lastLoginPath, store.ServerTimestamp()); err != nil {
		// Sign-in proceeds; the stamp is cosmetic.
		id.log.Warn("failed to stamp lastLogin", "uid", principal.ID, "error", err)
	}

	close(id.ready)
	return true, nil
}

func (id *Identity) parseClaims() (*sessionClaims, error) {
	claims := &sessionClaims{}
	if id.secret != "" {
		_, err := jwt.ParseWithClaims(id.token, claims, func(*jwt.Token) (any, error) {
			return []byte(id.secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		return claims, err
	}

	// Without the shared secret the client reads claims unverified; the
	// store enforces them server-side on every operation.
	_, _, err := jwt.NewParser().ParseUnverified(id.token, claims)
	return claims, err
}

// Principal returns the resolved principal, or nil while signed out.
func (id *Identity) Principal() *models.Principal {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.principal
}

// Token returns the bearer token for outbound API calls, or "" when signed
// out.
func (id *Identity) Token(context.Context) (string, error) {
	if id.Principal() == nil {
		return "", nil
	}
	return id.token, nil
}

// Ready is closed once, on the signed-out to signed-in transition. The
// registry and the notification feed wait on it before issuing per-user
// subscriptions.
func (id *Identity) Ready() <-chan struct{} {
	return id.ready
}

// SignOut clears the principal for the rest of this session. It does not
// touch remote state.
func (id *Identity) SignOut() {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.principal = nil
}

// Profile reads the stored profile of the current principal.
func (id *Identity) Profile(ctx context.Context) (*models.Profile, error) {
	p := id.Principal()
	if p == nil {
		return nil, constants.ErrUnauthenticated
	}

	raw, err := id.store.Read(ctx, store.UserProfilePath(p.ID))
	if err != nil {
		return nil, err
	}
	profile := &models.Profile{Email: p.Email}
	if raw != nil {
		if err := json.Unmarshal(raw, profile); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// UpdateProfile saves the mutable profile fields. Empty arguments leave the
// stored value untouched.
func (id *Identity) UpdateProfile(ctx context.Context, displayName, photoURL string) error {
	p := id.Principal()
	if p == nil {
		return constants.ErrUnauthenticated
	}

	profile, err := id.Profile(ctx)
	if err != nil {
		return err
	}
	if displayName != "" {
		profile.DisplayName = displayName
	}
	if photoURL != "" {
		profile.PhotoURL = photoURL
	}
	return id.store.Write(ctx, store.UserProfilePath(p.ID), profile)
}
