// Package storage selects the letter, settings and attachment backends from a
// DSN.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-futureme/internal/application/letter"
	"github.com/go-futureme/internal/config"
	"github.com/go-futureme/internal/domain"
	"github.com/go-futureme/internal/infrastructure/dynamo"
	"github.com/go-futureme/internal/infrastructure/memory"
	pebblestore "github.com/go-futureme/internal/infrastructure/pebble"
)

type Stores struct {
	Letters  domain.LetterRepository
	Settings domain.SettingsRepository
	// Blobs is nil when the backend keeps no attachment bytes (dynamo).
	Blobs    letter.AttachmentStore
	Backend  string
	close    func() error
}

func (s *Stores) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// Open understands memory://, pebble://<dir> (or a bare path) and dynamo://.
func Open(ctx context.Context, dsn string, cfg *config.Config) (*Stores, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty store DSN", domain.ErrBadRequest)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse store DSN: %w", err)
	}

	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "memory", "mem", "inmem":
		return &Stores{
			Letters:  memory.NewLetterRepo(),
			Settings: memory.NewSettingsRepo(),
			Blobs:    memory.NewBlobStore(),
			Backend:  "memory",
		}, nil
	case "", "file", "pebble":
		path, err := dsnPath(parsed, dsn)
		if err != nil {
			return nil, err
		}
		db, err := pebblestore.Open(path)
		if err != nil {
			return nil, err
		}
		slog.Info("opened pebble store", "path", path)
		return &Stores{
			Letters:  pebblestore.NewLetterRepo(db),
			Settings: pebblestore.NewSettingsRepo(db),
			Blobs:    pebblestore.NewBlobStore(db),
			Backend:  "pebble",
			close:    db.Close,
		}, nil
	case "dynamo", "dynamodb":
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return &Stores{
			Letters:  dynamo.NewLetterRepo(client, cfg.DynamoTables.Letters),
			Settings: dynamo.NewSettingsRepo(client, cfg.DynamoTables.Settings),
			Backend:  "dynamo",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", scheme)
	}
}

// dsnPath takes pebble://./data, pebble:///var/lib/x and bare paths alike.
func dsnPath(parsed *url.URL, raw string) (string, error) {
	if strings.TrimSpace(parsed.Scheme) == "" {
		return raw, nil
	}
	path := parsed.Host + parsed.Path
	if path == "" {
		path = parsed.Opaque
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: store DSN %q has no path", domain.ErrBadRequest, raw)
	}
	return path, nil
}
