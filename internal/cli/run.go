package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thuduc/fan-out-fan-in/pkg/config"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/orchestrator"
	"github.com/thuduc/fan-out-fan-in/pkg/rescache"
	"github.com/thuduc/fan-out-fan-in/pkg/store"
	"github.com/thuduc/fan-out-fan-in/pkg/task"
)

// runPayload mirrors the JSON shape an upstream caller may hand to
// "run --payload" instead of individual flags.
type runPayload struct {
	RequestID   string `json:"requestId"`
	XMLKey      string `json:"xmlKey"`
	ResponseKey string `json:"responseKey"`
}

func (c *CLI) runCommand() *cobra.Command {
	var (
		requestID   string
		xmlKey      string
		responseKey string
		payloadJSON string
		storeURL    string
		configPath  string
		noCache     bool
		cacheTTL    int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a hydration-and-dispatch request to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveRunOptions(requestID, xmlKey, responseKey, payloadJSON)
			if err != nil {
				return err
			}

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

			ok, err := st.Exists(ctx, opts.XMLKey)
			if err != nil {
				return fmt.Errorf("check xml key %s: %w", opts.XMLKey, err)
			}
			if !ok {
				return fmt.Errorf("xml key %s does not exist in the store", opts.XMLKey)
			}

			orchOpts := []orchestrator.Option{orchestrator.WithConfig(cfg)}
			cache, err := resolveResourceCache(noCache)
			if err != nil {
				return fmt.Errorf("set up resource cache: %w", err)
			}
			if cache != nil {
				orchOpts = append(orchOpts, orchestrator.WithResourceCache(cache, cacheTTL))
			} else {
				printWarning("resource cache disabled, every href/use target will be refetched")
			}
			orch := orchestrator.New(st, task.NewRedisInvoker(st), orchOpts...)

			progress := newProgress(c.Logger)
			spinner := newSpinnerWithContext(ctx, fmt.Sprintf("running request %s", opts.RequestID))
			spinner.Start()
			result, err := orch.Run(ctx, opts)
			if err != nil {
				spinner.StopWithError(fmt.Sprintf("request %s failed: %s", opts.RequestID, errors.UserMessage(err)))
				return err
			}
			progress.done(fmt.Sprintf("request %s completed", opts.RequestID))
			spinner.StopWithSuccess(fmt.Sprintf("Request %s completed", opts.RequestID))
			printKeyValue("Response key", result.ResponseKey)
			printNextStep("watch progress live with", fmt.Sprintf("orchestrator watch --request-id %s", opts.RequestID))
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "request identifier")
	cmd.Flags().StringVar(&xmlKey, "xml-key", "", "store key holding the request XML")
	cmd.Flags().StringVar(&responseKey, "response-key", "", "store key to write the assembled response to (defaults to request:<id>:response)")
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "JSON payload {requestId, xmlKey, responseKey} instead of individual flags")
	cmd.Flags().StringVar(&storeURL, "store-url", "", "Redis URL, overriding REDIS_URL/config")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the on-disk hydration resource cache")
	cmd.Flags().Int64Var(&cacheTTL, "cache-ttl", 0, "resource cache entry lifetime in seconds (0 means no expiration)")

	return cmd
}

// resolveResourceCache builds the on-disk hydration resource cache used to
// avoid refetching the same href/use target repeatedly, or nil when caching
// is disabled outright.
func resolveResourceCache(disabled bool) (rescache.Cache, error) {
	if disabled {
		return nil, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	return rescache.NewFileCache(dir)
}

func resolveRunOptions(requestID, xmlKey, responseKey, payloadJSON string) (orchestrator.RunOptions, error) {
	if payloadJSON != "" {
		var p runPayload
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return orchestrator.RunOptions{}, fmt.Errorf("parse --payload: %w", err)
		}
		requestID, xmlKey, responseKey = p.RequestID, p.XMLKey, p.ResponseKey
	}

	if requestID == "" {
		return orchestrator.RunOptions{}, fmt.Errorf("--request-id (or payload.requestId) is required")
	}
	if xmlKey == "" {
		return orchestrator.RunOptions{}, fmt.Errorf("--xml-key (or payload.xmlKey) is required")
	}
	if responseKey == "" {
		responseKey = fmt.Sprintf("request:%s:response", requestID)
	}

	return orchestrator.RunOptions{
		RequestID:   requestID,
		XMLKey:      xmlKey,
		ResponseKey: responseKey,
	}, nil
}
