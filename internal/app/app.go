package app

import (
	"context"
	"fmt"

	"github.com/synctui/synctui/internal/config"
	"github.com/synctui/synctui/internal/engine"
	"github.com/synctui/synctui/internal/prefs"
	"github.com/synctui/synctui/internal/syncthing"
	"github.com/synctui/synctui/internal/ui"
)

// Options configure the synctui application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/synctui/prefs.toml
	APIKey     string // overrides the config file's api-key
	Address    string // overrides the config file's address
}

// Run boots the synctui TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.APIKey != "" {
		cfg.APIKey = opts.APIKey
	}
	if opts.Address != "" {
		cfg.Address = opts.Address
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("no API key: set api-key in the config file or pass -api-key")
	}

	userPrefs := prefs.Load(opts.PrefsPath)

	client, err := syncthing.NewClient(cfg.Address, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("init daemon client: %w", err)
	}

	eng := engine.New(client)
	go eng.Run(ctx)

	// Feed the engine in the background; the UI starts immediately and
	// shows the disconnected banner until the first snapshot lands.
	StartStream(ctx, eng, client)

	uiOpts := ui.Options{
		Context:   ctx,
		Engine:    eng,
		ThemeName: userPrefs.Theme,
		StartView: userPrefs.StartView,
		PrefsPath: opts.PrefsPath,
	}
	return ui.Run(uiOpts)
}
