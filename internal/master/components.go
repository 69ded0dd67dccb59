package master

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"stratadb/internal/catalog"
	"stratadb/internal/config"
	"stratadb/internal/directory"
	"stratadb/internal/security"
)

const lockFileName = "LOCK"

// Components bundles the master-owned state handed into request handlers.
// Lifetime is tied to the process; Close releases everything.
type Components struct {
	Catalog   *catalog.Catalog
	Directory *directory.Directory
	CA        *security.CertAuthority
	TSK       *security.TokenSigner

	fileLock *flock.Flock
}

// OpenComponents locks the data directory, loads the catalog, and builds the
// security material. A catalog load failure is returned as-is: the caller
// must refuse to serve, not retry.
func OpenComponents(cfg *config.MasterConfig) (*Components, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("master data directory is empty")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	fileLock := flock.New(filepath.Join(cfg.DataDir, lockFileName))
	held, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data directory: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("data directory %s is in use by another master", cfg.DataDir)
	}

	cat, err := catalog.Open(cfg.DataDir)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, err
	}
	ca, err := security.NewCertAuthority(cfg.ClusterName)
	if err != nil {
		_ = cat.Close()
		_ = fileLock.Unlock()
		return nil, err
	}
	tsk, err := security.NewTokenSigner(cfg.TSKValidity)
	if err != nil {
		_ = cat.Close()
		_ = fileLock.Unlock()
		return nil, err
	}

	cat.AssumeLeadership()
	return &Components{
		Catalog:   cat,
		Directory: directory.New(cfg.StaleAfter()),
		CA:        ca,
		TSK:       tsk,
		fileLock:  fileLock,
	}, nil
}

func (c *Components) Close() error {
	c.Catalog.Resign()
	err := c.Catalog.Close()
	if c.fileLock != nil {
		if e := c.fileLock.Unlock(); err == nil {
			err = e
		}
	}
	return err
}

// RunStalenessSweeper periodically marks servers stale until ctx is done.
func (c *Components) RunStalenessSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Directory.MarkStale(time.Now())
		case <-ctx.Done():
			return
		}
	}
}
