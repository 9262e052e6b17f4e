package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"photo-gallery/internal/auth"
	"photo-gallery/internal/config"
	"photo-gallery/internal/guard"
	"photo-gallery/internal/models"
	"photo-gallery/internal/storage"
)

// ErrNotLoggedIn is returned by commands that need a session.
var ErrNotLoggedIn = errors.New("not logged in")

// env is an open profile store with its restored session.
type env struct {
	db          *storage.DB
	collections *storage.Collections
	session     *auth.Manager
}

func openEnv(opts *RootOptions) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	path := cfg.DBPath
	if opts.DBPath != "" {
		path = opts.DBPath
	}

	db, err := storage.OpenDB(cfg.DBDriver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema, err := storage.NewSchema()
	if err != nil {
		db.Close()
		return nil, err
	}
	collections := storage.NewCollections(db.Namespace(storage.ProfileNamespace(opts.Profile)), schema)

	session, err := auth.NewManager(collections, cfg.Hasher())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{db: db, collections: collections, session: session}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

// requireSession applies the route guard to a protected command.
func (e *env) requireSession() (*models.User, error) {
	if d := guard.Check(guard.RouteDashboard, e.session.IsAuthenticated()); !d.Allow {
		return nil, fmt.Errorf("%w: run \"gallery login\" first", ErrNotLoggedIn)
	}
	return e.session.User(), nil
}

// output writes data as JSON or through text, depending on the format flag.
func output(opts *RootOptions, w io.Writer, data any, text func(io.Writer) error) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return text(w)
}
