package cli

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"pxwatch/internal/svc"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the polling loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			LogConfigSummary(cfg)

			svcCtx, err := svc.NewServiceContext(cfg, svc.Options{DryRun: v.GetBool("dry-run")})
			if err != nil {
				return err
			}
			defer svcCtx.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
				threading.GoSafe(func() {
					if err := svcCtx.Metrics.Serve(ctx, addr, cfg.Metrics.Path); err != nil {
						logx.Errorf("metrics: serve addr=%s err=%v", addr, err)
					}
				})
			}
			return svcCtx.Poller.Run(ctx)
		},
	}
}
