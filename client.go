package loomsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/loomhq/loomsync/internal/localstate"
	"github.com/loomhq/loomsync/pkg/logger"
	logslog "github.com/loomhq/loomsync/pkg/logger/slog"
	"github.com/loomhq/loomsync/pkg/store"
)

const appName = "loomsync"

// Config carries everything needed to open a session.
type Config struct {
	// URL is the websocket endpoint of the remote store.
	URL string `env:"LOOMSYNC_URL"`
	// Token is the session bearer token issued by the auth backend.
	Token string `env:"LOOMSYNC_TOKEN"`
	// TokenSecret optionally enables local HS256 verification of Token.
	// When empty, claims are read without verification and the store is
	// trusted to reject bad tokens.
	TokenSecret string `env:"LOOMSYNC_TOKEN_SECRET"`
	// Timeout bounds each store RPC. Zero disables the bound.
	Timeout time.Duration `env:"LOOMSYNC_TIMEOUT" envDefault:"30s"`
	// StatePath overrides the XDG location of the durable session state.
	StatePath string `env:"LOOMSYNC_STATE_PATH"`
}

// ParseEnv loads Config from LOOMSYNC_* environment variables.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Client is the session object owning the store connection and the sync
// components. It replaces the shared singletons of earlier designs: callers
// construct one per session and pass it by reference.
type Client struct {
	store store.Store
	log   logger.Logger

	identity      *Identity
	workspaces    *Workspaces
	content       *Content
	invites       *Invites
	notifications *Notifications

	ownsStore *store.WebSocketStore
}

// New dials the remote store, authenticates with cfg.Token and assembles a
// session around the connection.
func New(ctx context.Context, cfg Config) (*Client, error) {
	log := logslog.New(slog.NewJSONHandler(os.Stdout, nil))

	ws := store.NewWebSocketStore(cfg.URL).SetTimeout(cfg.Timeout).Logger(log)
	if err := ws.Connect(ctx); err != nil {
		return nil, err
	}
	if cfg.Token != "" {
		if err := ws.Authenticate(ctx, cfg.Token); err != nil {
			_ = ws.Close(ctx)
			return nil, err
		}
	}

	c, err := NewWithStore(ws, cfg, log)
	if err != nil {
		_ = ws.Close(ctx)
		return nil, err
	}
	c.ownsStore = ws
	return c, nil
}

// NewWithStore assembles a session on top of an already-open store. The
// caller keeps ownership of the store's lifecycle. Used by tests and by
// embedded setups running against a MemoryStore.
func NewWithStore(st store.Store, cfg Config, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logslog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	var state *localstate.State
	var err error
	if cfg.StatePath != "" {
		state, err = localstate.OpenPath(cfg.StatePath)
	} else {
		state, err = localstate.Open(appName)
	}
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}

	c := &Client{store: st, log: log}
	c.identity = newIdentity(st, log, cfg.Token, cfg.TokenSecret)
	c.workspaces = newWorkspaces(st, c.identity, state, log)
	c.content = newContent(st, log)
	c.invites = newInvites(st, c.identity, log)
	c.notifications = newNotifications(st, c.identity, log)
	return c, nil
}

func (c *Client) Identity() *Identity { return c.identity }

func (c *Client) Workspaces() *Workspaces { return c.workspaces }

func (c *Client) Content() *Content { return c.content }

func (c *Client) Invites() *Invites { return c.invites }

func (c *Client) Notifications() *Notifications { return c.notifications }

// Store exposes the underlying store for callers layered above the SDK.
func (c *Client) Store() store.Store { return c.store }

// Close stops every live subscription and, when the Client dialed its own
// connection, closes it.
func (c *Client) Close(ctx context.Context) error {
	c.content.Close()
	c.notifications.Unsubscribe()
	if c.ownsStore != nil {
		return c.ownsStore.Close(ctx)
	}
	return nil
}
