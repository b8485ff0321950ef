package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/logmail/pkg/mailtransport"
	"github.com/telekom/logmail/pkg/transport"
)

// DefaultSendTimeout bounds how long send waits for deliveries.
const DefaultSendTimeout = 30 * time.Second

// ErrNoTransport is returned when no transport accepts the record level.
var ErrNoTransport = errors.New("no transport accepts this level")

// ErrDeliveryFailed is returned when at least one delivery failed.
var ErrDeliveryFailed = errors.New("delivery failed")

type outcome struct {
	detail string
	err    error
}

// outcomes collects one result per transport. The first report wins, so a
// send error seen as an event is not overwritten by the callback.
type outcomes struct {
	mu  sync.Mutex
	byT map[string]outcome
}

func (o *outcomes) set(name string, res outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.byT[name]; !ok {
		o.byT[name] = res
	}
}

func (o *outcomes) onEvent(ev mailtransport.Event) {
	if ev.Kind == mailtransport.EventError {
		o.set(ev.Transport, outcome{err: ev.Err})
		return
	}
	detail := ev.Receipt.MessageID
	if ev.Receipt.Response != "" {
		detail = strings.TrimSpace(detail + " " + ev.Receipt.Response)
	}
	o.set(ev.Transport, outcome{detail: detail})
}

func NewSendCommand() *cobra.Command {
	var (
		level      string
		metaPairs  []string
		transports []string
		timeout    time.Duration
	)
	defaultTimeout, envErr := getEnvDuration("LOGMAIL_SEND_TIMEOUT", DefaultSendTimeout)

	cmd := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send one log record through the configured transports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if envErr != nil {
				rt.Logger().Sugar().Warn(envErr)
			}
			lvl, err := transport.ParseLevel(level)
			if err != nil {
				return err
			}
			pairs, err := parseMeta(metaPairs)
			if err != nil {
				return err
			}
			// Records without metadata must carry a nil interface.
			var meta interface{}
			if pairs != nil {
				meta = pairs
			}

			p, err := rt.buildPipeline()
			if err != nil {
				return err
			}
			closed := false
			defer func() {
				if closed {
					return
				}
				cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = p.close(cctx)
			}()

			candidates, err := p.selected(transports)
			if err != nil {
				return err
			}

			var targets []transport.Transport
			for _, t := range candidates {
				if t.Level().Enabled(lvl) {
					targets = append(targets, t)
				}
			}
			if len(targets) == 0 {
				return fmt.Errorf("%w: %s", ErrNoTransport, lvl)
			}

			results := &outcomes{byT: make(map[string]outcome, len(targets))}
			for _, mt := range p.mail {
				mt.OnEvent(results.onEvent)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			message := strings.Join(args, " ")
			var wg sync.WaitGroup
			for _, t := range targets {
				wg.Add(1)
				name := t.Name()
				t.Log(lvl.String(), message, meta, func(err error) {
					defer wg.Done()
					if err != nil {
						results.set(name, outcome{err: err})
					} else {
						results.set(name, outcome{})
					}
				})
			}

			waited := make(chan struct{})
			go func() {
				wg.Wait()
				close(waited)
			}()
			select {
			case <-waited:
			case <-ctx.Done():
				return fmt.Errorf("waiting for deliveries: %w", ctx.Err())
			}
			closed = true
			if err := p.close(ctx); err != nil {
				return err
			}

			return report(rt, targets, results)
		},
	}

	cmd.Flags().StringVarP(&level, "level", "l", getEnvString("LOGMAIL_SEND_LEVEL", mailtransport.DefaultLevel), "Record level")
	cmd.Flags().StringArrayVarP(&metaPairs, "meta", "m", nil, "Metadata as key=value, repeatable")
	cmd.Flags().StringSliceVarP(&transports, "transport", "t", nil, "Only use transports matching these names or glob patterns")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "Maximum time to wait for deliveries")

	return cmd
}

func report(rt *runtimeState, targets []transport.Transport, results *outcomes) error {
	w := rt.Writer()
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name())
	}
	sort.Strings(names)

	failed := 0
	results.mu.Lock()
	defer results.mu.Unlock()
	for _, n := range names {
		res := results.byT[n]
		switch {
		case res.err != nil:
			failed++
			_, _ = fmt.Fprintf(w, "%s: failed: %v\n", n, res.err)
		case res.detail != "":
			_, _ = fmt.Fprintf(w, "%s: sent %s\n", n, res.detail)
		default:
			_, _ = fmt.Fprintf(w, "%s: sent\n", n)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d transports", ErrDeliveryFailed, failed, len(names))
	}
	return nil
}

// parseMeta turns key=value pairs into record metadata.
func parseMeta(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}
