package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/homeconnect/pkg/homeconnect"
	"github.com/aussiebroadwan/homeconnect/pkg/slogx"
)

// NewRootCommand builds the homeconnect CLI.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "homeconnect",
		Short:         "Control Home Connect appliances from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/homeconnect/config.yaml)")

	root.AddCommand(
		newAuthorizeCommand(&configPath),
		newAppliancesCommand(&configPath),
		newStatusCommand(&configPath),
		newSettingsCommand(&configPath),
		newWatchCommand(&configPath),
	)
	return root
}

// newClient loads the config, wires the auth cache and builds the API
// client. The returned cleanup must run before exit so the monitor stops
// and the last token state is on disk.
func newClient(configPath string) (*homeconnect.Client, *Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, nil, err
		}
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	store := newAuthStore(cfg.AuthFile)
	saved, err := store.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := slogx.New(slogx.Config{
		Service: "homeconnect",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	client, err := homeconnect.NewClient(homeconnect.ClientConfig{
		ClientID:      cfg.ClientID,
		SimulatorMode: cfg.Simulator,
		Language:      cfg.Language,
		Scopes:        cfg.Scopes,
		SavedAuth:     saved,
		Logger:        logger,
		OnAuthSaved: func(auth map[string]homeconnect.AuthState) {
			if err := store.Save(auth); err != nil {
				logger.Error("persist auth cache failed", "error", err)
			}
		},
		OnAuthorizationURI: func(uri string) {
			fmt.Fprintf(os.Stderr, "Open %s in a browser to authorize this application.\n", uri)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}
