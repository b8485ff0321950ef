package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/logmail/pkg/mailtransport"
)

// DefaultVerifyTimeout bounds each endpoint check.
const DefaultVerifyTimeout = 15 * time.Second

// ErrVerifyFailed is returned when at least one endpoint check failed.
var ErrVerifyFailed = errors.New("verification failed")

func NewVerifyCommand() *cobra.Command {
	var (
		transports []string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check connectivity and credentials of every mail transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			p, err := rt.buildPipeline()
			if err != nil {
				return err
			}
			defer func() { _ = p.close(cmd.Context()) }()

			selected, err := p.selected(transports)
			if err != nil {
				return err
			}

			w := rt.Writer()
			failed, checked := 0, 0
			for _, t := range selected {
				mt, ok := t.(*mailtransport.Transport)
				if !ok {
					continue
				}
				checked++
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				err := mt.Verify(ctx)
				cancel()
				if err != nil {
					failed++
					_, _ = fmt.Fprintf(w, "%s: FAILED: %v\n", mt.Name(), err)
					continue
				}
				_, _ = fmt.Fprintf(w, "%s: ok\n", mt.Name())
			}
			if checked == 0 {
				_, _ = fmt.Fprintln(w, "no mail transports configured")
				return nil
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d transports", ErrVerifyFailed, failed, checked)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&transports, "transport", "t", nil, "Only verify transports matching these names or glob patterns")
	cmd.Flags().DurationVar(&timeout, "timeout", DefaultVerifyTimeout, "Timeout per transport")

	return cmd
}
