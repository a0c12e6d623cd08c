package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
)

type rootOptions struct {
	configFile string
	verbose    bool
}

// newRootCmd builds the command tree. Subcommands share the loaded config
// and logger through rootOptions.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "cbam",
		Short: "Estimate CBAM carbon border tax from invoice images",
		Long: `cbam runs the estimator offline: analyze a folder of invoice images into
an XLSX report, watch a drop folder, inspect the reference table, price a
single material, or apply the history schema.

Configuration comes from the file named by --config (or CBAM_CONFIG) and
CBAM_* environment variables; OPENAI_API_KEY, GEMINI_API_KEY and DB_URL
are honored as well.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newWatchCmd(opts),
		newMaterialsCmd(opts),
		newEstimateCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// load reads configuration and builds the JSON logger used by every
// subcommand. Logs go to stderr so stdout stays parseable.
func (o *rootOptions) load() (*common.Config, *slog.Logger, error) {
	if strings.TrimSpace(o.configFile) != "" {
		if err := os.Setenv("CBAM_CONFIG", o.configFile); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logCfg := cfg.Log
	logCfg.Format = "json"
	if o.verbose {
		logCfg.Level = "debug"
	}
	logger := common.NewLogger(logCfg, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func requireAPIKey(cfg *common.Config) error {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return common.NewAppError("CONFIG_ERROR", "an LLM API key is required (OPENAI_API_KEY or GEMINI_API_KEY)", common.ErrInvalidInput)
	}
	return nil
}
