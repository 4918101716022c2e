package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pxwatch/internal/svc"
	"pxwatch/pkg/poller"
)

// ErrPricesUnavailable is returned by check when any asset could not be priced.
var ErrPricesUnavailable = errors.New("one or more prices unavailable")

func newCheckCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one cycle and print the message without sending it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			svcCtx, err := svc.NewServiceContext(cfg, svc.Options{DryRun: true, Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer svcCtx.Close()

			res := svcCtx.Poller.RunCycle(cmd.Context())
			if res.Outcome == poller.OutcomeFetchFailed {
				return fmt.Errorf("%w: %v", ErrPricesUnavailable, res.Err)
			}
			return nil
		},
	}
}
