package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MJE43/raid-extract/internal/client"
	"github.com/MJE43/raid-extract/internal/config"
	"github.com/MJE43/raid-extract/internal/credentials"
	"github.com/MJE43/raid-extract/internal/logging"
	"github.com/MJE43/raid-extract/internal/pending"
	"github.com/MJE43/raid-extract/internal/scripting"
	"github.com/MJE43/raid-extract/internal/session"
)

const credentialService = "raid-extract"

// player wires the client-side pieces from config and flags.
type player struct {
	cfg     config.Client
	profile string
}

func (p *player) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.cfg.APIURL, "api", p.cfg.APIURL, "seed service URL")
	cmd.Flags().StringVar(&p.cfg.PendingPath, "pending", p.cfg.PendingPath, "pending claim queue file")
	cmd.Flags().StringVar(&p.profile, "profile", "default", "credential profile")
	cmd.Flags().StringVar(&p.cfg.LogLevel, "log-level", p.cfg.LogLevel, "log level")
}

func (p *player) token() (string, error) {
	if strings.TrimSpace(p.cfg.Token) != "" {
		return p.cfg.Token, nil
	}
	tok, err := credentials.NewStore(credentialService, credentials.DefaultFallbackPath()).Token(p.profile)
	if errors.Is(err, credentials.ErrNotFound) {
		return "", fmt.Errorf("no token for profile %q; run `raid login` or set RAID_TOKEN", p.profile)
	}
	return tok, err
}

func (p *player) session(opts ...session.Option) (*session.Session, *zap.Logger, error) {
	logger, err := logging.New(p.cfg.LogLevel, true)
	if err != nil {
		return nil, nil, err
	}
	tok, err := p.token()
	if err != nil {
		return nil, nil, err
	}
	c := client.NewClient(client.Config{
		BaseURL:        p.cfg.APIURL,
		Token:          tok,
		MaxRetries:     p.cfg.RetryMax,
		BaseRetryDelay: p.cfg.RetryBackoff,
		HTTPClient:     &http.Client{Timeout: p.cfg.HTTPTimeout},
		UserAgent:      "raid-cli",
	})
	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	return session.New(c, pending.NewQueue(p.cfg.PendingPath), opts...), logger, nil
}

func newPlayCmd() *cobra.Command {
	cfg, loadErr := config.LoadClient()
	p := &player{cfg: cfg}
	var (
		lo      loadout
		cadence time.Duration
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one raid with a bot and settle it with the seed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			if lo.catalog == "" {
				lo.catalog = p.cfg.CatalogPath
			}
			raidCfg, err := lo.config()
			if err != nil {
				return err
			}
			factory, err := lo.factory()
			if err != nil {
				return err
			}
			strategy, err := factory()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sess, logger, err := p.session(session.OnUpdate(func(r session.Result) { printResult(out, r) }))
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			fmt.Fprintf(out, "raid: %s, fee %s SOL, strategy %s\n",
				raidCfg.Difficulty, humanize.FtoaWithDigits(raidCfg.EntryFee, 4), strategy.Name())
			_, err = sess.Play(cmd.Context(), raidCfg, scripting.RunnerDriver(strategy, cadence))
			return err
		},
	}

	p.bind(cmd)
	lo.bind(cmd)
	cmd.Flags().DurationVar(&cadence, "cadence", scripting.DefaultCadence, "how often the bot acts")
	return cmd
}

func printResult(w io.Writer, r session.Result) {
	o := r.Outcome
	verb := "lost (" + string(o.Reason) + ")"
	if o.Success {
		verb = "extracted"
	}
	fmt.Fprintf(w, "[%s] %s after %ds, %s points, credit %s SOL\n",
		r.Status, verb, o.ElapsedSeconds, humanize.Comma(int64(o.Points)), r.Credit().StringFixed(6))
	if r.Verdict != nil && r.Verdict.RejectionCode != "" {
		fmt.Fprintf(w, "  pending verification: %s\n", r.Verdict.RejectionReason)
	}
	if r.QueueID != "" {
		fmt.Fprintf(w, "  queued as %s; run `raid reconcile` later\n", r.QueueID)
	}
}

func newReconcileCmd() *cobra.Command {
	cfg, loadErr := config.LoadClient()
	p := &player{cfg: cfg}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Resubmit queued raid results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			sess, logger, err := p.session()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			report, err := sess.Reconcile(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %s, %s still pending\n",
				humanize.Comma(int64(report.Delivered)), humanize.Comma(int64(report.Remaining)))
			return err
		},
	}
	p.bind(cmd)
	return cmd
}
