// Command loomsweep runs the consistency sweep against a remote store: it
// re-derives the per-user membership index and the global invite index from
// the source-of-truth workspace records and repairs any divergence left
// behind by partial multi-write failures.
//
// Configuration comes from the environment (a .env file is honored):
//
//	LOOMSYNC_URL      websocket endpoint of the store
//	LOOMSYNC_TOKEN    bearer token with sweep permissions
//	LOOMSWEEP_BACKUP  optional path for a CBOR snapshot taken before repairs
//	LOOMSWEEP_DRY_RUN when true, replay the sweep against an in-memory copy
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/loomhq/loomsync"
	"github.com/loomhq/loomsync/internal/codec"
	logzerolog "github.com/loomhq/loomsync/pkg/logger/zerolog"
	"github.com/loomhq/loomsync/pkg/store"
)

type sweepConfig struct {
	BackupPath string `env:"LOOMSWEEP_BACKUP"`
	DryRun     bool   `env:"LOOMSWEEP_DRY_RUN"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "loomsweep:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Missing .env just means the environment is already populated.
	_ = godotenv.Load()

	cfg, err := loomsync.ParseEnv()
	if err != nil {
		return err
	}
	var sweep sweepConfig
	if err := env.Parse(&sweep); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log := logzerolog.FromLogger(zl)

	remote := store.NewWebSocketStore(cfg.URL).SetTimeout(cfg.Timeout).Logger(log)
	if err := remote.Connect(ctx); err != nil {
		return err
	}
	defer remote.Close(ctx)

	if cfg.Token != "" {
		if err := remote.Authenticate(ctx, cfg.Token); err != nil {
			return err
		}
	}

	tree, err := remote.Read(ctx, "")
	if err != nil {
		return err
	}

	if sweep.BackupPath != "" {
		if err := writeBackup(sweep.BackupPath, tree); err != nil {
			return err
		}
		log.Info("backup written", "path", sweep.BackupPath)
	}

	var target store.Store = remote
	if sweep.DryRun {
		target, err = seedMemoryStore(ctx, tree)
		if err != nil {
			return err
		}
		log.Info("dry run: repairs go to an in-memory copy")
	}

	client, err := loomsync.NewWithStore(target, cfg, log)
	if err != nil {
		return err
	}

	report, err := client.Reconcile(ctx)
	if err != nil {
		return err
	}

	log.Info("sweep complete",
		"workspaces", report.WorkspacesScanned,
		"memberships_repaired", report.MembershipsRepaired,
		"invites_repaired", report.InvitesRepaired,
		"dry_run", sweep.DryRun,
	)
	return nil
}

// writeBackup stores the pre-repair tree as CBOR, which keeps snapshots of
// large trees considerably smaller than the JSON wire form.
func writeBackup(path string, tree json.RawMessage) error {
	var decoded any
	if tree != nil {
		if err := json.Unmarshal(tree, &decoded); err != nil {
			return err
		}
	}
	data, err := codec.CBORCodec{}.Marshal(decoded)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// seedMemoryStore loads the remote tree into a fresh MemoryStore so the
// sweep can run without touching the real store.
func seedMemoryStore(ctx context.Context, tree json.RawMessage) (*store.MemoryStore, error) {
	mem := store.NewMemoryStore()
	if tree == nil {
		return mem, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(tree, &top); err != nil {
		return nil, err
	}
	for key, value := range top {
		if err := mem.Write(ctx, key, value); err != nil {
			return nil, err
		}
	}
	return mem, nil
}
