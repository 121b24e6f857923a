package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// rescacheCommand creates the resource cache management command — the
// directory pkg/rescache.FileCache uses to avoid refetching the same
// href/s3 target across hydration passes.
func (c *CLI) rescacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescache",
		Short: "Manage the hydration resource cache",
	}

	cmd.AddCommand(c.rescacheClearCommand())
	cmd.AddCommand(c.rescachePathCommand())

	return cmd
}

// rescacheClearCommand creates the "rescache clear" subcommand.
func (c *CLI) rescacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			count := 0
			err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil
				}
				if path == dir {
					return nil
				}
				if !info.IsDir() {
					if err := os.Remove(path); err == nil {
						count++
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil || path == dir {
					return nil
				}
				if info.IsDir() {
					os.Remove(path)
				}
				return nil
			})

			printSuccess("Cleared %d cached entries", count)
			printDetail("Directory: %s", dir)
			return nil
		},
	}
}

// rescachePathCommand creates the "rescache path" subcommand.
func (c *CLI) rescachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resource cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(dir)
			return nil
		},
	}
}

// cacheDir returns the resource cache directory using the XDG standard
// (~/.cache/orchestrator/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
