package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/thuduc/fan-out-fan-in/internal/api"
	"github.com/thuduc/fan-out-fan-in/pkg/config"
	"github.com/thuduc/fan-out-fan-in/pkg/store"
)

func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr       string
		storeURL   string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only request-status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if storeURL != "" {
				cfg.RedisURL = storeURL
			}

			ctx := cmd.Context()
			st, err := store.NewRedisStore(ctx, cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("connect to store: %w", err)
			}
			defer st.Close()

			srv := &http.Server{
				Addr:    addr,
				Handler: api.NewServer(st).Router(),
			}

			errCh := make(chan error, 1)
			go func() {
				c.Logger.Infof("serving on %s", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&storeURL, "store-url", "", "Redis URL, overriding REDIS_URL/config")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")

	return cmd
}
