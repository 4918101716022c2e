package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeromicro/go-zero/core/logx"

	"pxwatch/internal/config"
)

const (
	envPrefix         = "PXWATCH"
	defaultConfigPath = "etc/pxwatch.yaml"
)

// NewRootCommand builds the pxwatch command tree. Flags can also be set
// through PXWATCH_* environment variables (PXWATCH_DRY_RUN=true).
func NewRootCommand() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:   "pxwatch",
		Short: "Posts crypto price updates to a messaging channel",
		Long: `pxwatch polls USD prices for a fixed set of assets once per scheduling
boundary and posts a short trend message whenever it changes.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "f", defaultConfigPath, "path to the main config file")
	flags.Bool("dry-run", false, "log messages instead of sending them")
	flags.String("log-level", "", "override Log.Level (debug|info|error|severe)")
	for _, name := range []string{"config", "dry-run", "log-level"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(newRunCommand(v), newCheckCommand(v))
	return root
}

// loadConfig reads the main config and sets up logx from it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if level := strings.TrimSpace(v.GetString("log-level")); level != "" {
		cfg.Log.Level = level
	}
	if cfg.Log.ServiceName == "" {
		cfg.Log.ServiceName = cfg.Name
	}
	if err := logx.SetUp(cfg.Log); err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	return cfg, nil
}
