package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/runtime"
)

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Inspect and call modules that describe their own types",
	Long: `bridge loads WebAssembly modules speaking the bridge protocol, lists the
structures they describe and calls their functions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("color")
		switch mode {
		case "on":
			color.NoColor = false
		case "off":
			color.NoColor = true
		case "auto":
			color.NoColor = !isTerminal(os.Stdout)
		default:
			return fmt.Errorf("--color must be auto, on or off, not %q", mode)
		}
		return nil
	},
}

func main() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(browseCmd)

	rootCmd.PersistentFlags().String("config", "", "TOML configuration file")
	rootCmd.PersistentFlags().String("cache-dir", "", "cache compiled code and catalogs here")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s%v\n", errorColor.Sprint("error: "), err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// loadConfig reads --config and applies the flags that override it.
func loadConfig(cmd *cobra.Command) (runtime.Config, error) {
	cfg := runtime.DefaultConfig()
	flags := cmd.Root().PersistentFlags()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = runtime.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if dir, _ := flags.GetString("cache-dir"); dir != "" {
		cfg.CacheDir = dir
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Log.Level = level
		cfg.Log.Development = true
	}
	return cfg, nil
}

func newRuntime(cmd *cobra.Command) (*runtime.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return runtime.New(cmd.Context(), runtime.WithConfig(cfg))
}
