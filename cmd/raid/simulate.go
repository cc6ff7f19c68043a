package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MJE43/raid-extract/internal/catalog"
	"github.com/MJE43/raid-extract/internal/engine"
	"github.com/MJE43/raid-extract/internal/raid"
	"github.com/MJE43/raid-extract/internal/rules"
	"github.com/MJE43/raid-extract/internal/scripting"
	"github.com/MJE43/raid-extract/internal/simulate"
)

// loadout collects the raid config flags shared by simulate and play.
type loadout struct {
	difficulty string
	fee        float64
	gear       []string
	boosts     []string
	ticket     bool
	streak     int
	catalog    string
	strategy   string
	script     string
}

func (l *loadout) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.difficulty, "difficulty", "medium", "EASY, MEDIUM, HARD or DEGEN")
	cmd.Flags().Float64Var(&l.fee, "fee", 0.05, "entry fee in SOL")
	cmd.Flags().StringSliceVar(&l.gear, "gear", nil, "equipped gear ids")
	cmd.Flags().StringSliceVar(&l.boosts, "boost", nil, "active boost ids")
	cmd.Flags().BoolVar(&l.ticket, "ticket", false, "entry ticket discount is active")
	cmd.Flags().IntVar(&l.streak, "streak", 0, "current win streak")
	cmd.Flags().StringVar(&l.catalog, "catalog", "", "catalog override YAML")
	cmd.Flags().StringVar(&l.strategy, "strategy", "cautious", "built-in strategy: cautious or greedy")
	cmd.Flags().StringVar(&l.script, "script", "", "JavaScript strategy file (overrides --strategy)")
}

func (l *loadout) config() (raid.Config, error) {
	d, err := rules.ParseDifficulty(l.difficulty)
	if err != nil {
		return raid.Config{}, err
	}
	cat, err := catalog.Load(l.catalog)
	if err != nil {
		return raid.Config{}, err
	}
	gear, boosts, err := cat.Resolve(l.gear, l.boosts)
	if err != nil {
		return raid.Config{}, err
	}
	return raid.Config{
		Difficulty:           d,
		EntryFee:             l.fee,
		Gear:                 gear,
		Boosts:               boosts,
		TicketDiscountActive: l.ticket,
		StreakWins:           l.streak,
	}, nil
}

func (l *loadout) factory() (scripting.Factory, error) {
	if l.script == "" {
		return scripting.Builtin(l.strategy)
	}
	src, err := os.ReadFile(l.script)
	if err != nil {
		return nil, err
	}
	p, err := scripting.Compile(l.script, string(src))
	if err != nil {
		return nil, err
	}
	return p.Factory(), nil
}

func newSimulateCmd() *cobra.Command {
	var (
		lo         loadout
		serverSeed string
		clientSeed string
		from, to   uint64
		workers    int
		asJSON     bool
		keepRaids  bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a nonce range with a bot and report payout statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(serverSeed) == "" {
				return fmt.Errorf("--server-seed is required")
			}
			cfg, err := lo.config()
			if err != nil {
				return err
			}
			factory, err := lo.factory()
			if err != nil {
				return err
			}

			res, err := simulate.Run(cmd.Context(), simulate.Request{
				Seeds:      engine.Seeds{Server: serverSeed, Client: clientSeed},
				NonceStart: from,
				NonceEnd:   to,
				Config:     cfg,
				Strategy:   factory,
				Workers:    workers,
				KeepRaids:  keepRaids,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printSummary(cmd.OutOrStdout(), res.Summary, res.Duration)
			return nil
		},
	}

	lo.bind(cmd)
	cmd.Flags().StringVar(&serverSeed, "server-seed", "", "server seed (revealed)")
	cmd.Flags().StringVar(&clientSeed, "client-seed", "", "client seed")
	cmd.Flags().Uint64Var(&from, "from", 1, "first nonce")
	cmd.Flags().Uint64Var(&to, "to", 1000, "last nonce")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&keepRaids, "raids", false, "include every raid in JSON output")
	return cmd
}

func printSummary(w io.Writer, s simulate.Summary, took string) {
	winRate := 0.0
	if s.Raids > 0 {
		winRate = float64(s.Wins) / float64(s.Raids) * 100
	}
	fmt.Fprintf(w, "raids        %s in %s\n", humanize.Comma(int64(s.Raids)), took)
	fmt.Fprintf(w, "extracted    %s (%s%%)\n", humanize.Comma(int64(s.Wins)), humanize.FtoaWithDigits(winRate, 2))
	fmt.Fprintf(w, "staked       %s SOL\n", humanize.FtoaWithDigits(s.TotalStaked, 4))
	fmt.Fprintf(w, "paid         %s SOL (max %s)\n", humanize.FtoaWithDigits(s.TotalPaid, 4), humanize.FtoaWithDigits(s.MaxPayout, 4))
	fmt.Fprintf(w, "rtp          %s%%\n", humanize.FtoaWithDigits(s.RTP*100, 2))
	fmt.Fprintf(w, "mean time    %ss\n", humanize.FtoaWithDigits(s.MeanElapsed, 1))
	fmt.Fprintf(w, "points       p50 %s  p95 %s\n", humanize.Comma(int64(s.PointsP50)), humanize.Comma(int64(s.PointsP95)))
	fmt.Fprintf(w, "early exits  %s  golden %s\n", humanize.Comma(int64(s.EarlyExits)), humanize.Comma(int64(s.GoldenCashOut)))

	for _, k := range sortedKeys(s.LossesBy) {
		fmt.Fprintf(w, "lost: %-18s %s\n", k, humanize.Comma(int64(s.LossesBy[k])))
	}
	for _, k := range sortedKeys(s.Rejections) {
		fmt.Fprintf(w, "rejected: %-14s %s\n", k, humanize.Comma(int64(s.Rejections[k])))
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
