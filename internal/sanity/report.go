// Package sanity renders an operator report of the latest persisted pipeline state.
package sanity

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/market"
	"oidworker/internal/domain/options"
	"oidworker/internal/domain/relation"
	"oidworker/internal/session"
	"oidworker/pkg/errors"
)

const (
	runsLimit      = 30
	snapshotsLimit = 4
	relationLimit  = 3
	ticksLimit     = 12
	deltasLimit    = 4
)

type RunSource interface {
	Recent(ctx context.Context, limit int) ([]jobrun.Run, error)
}

type OptionsSource interface {
	LatestSnapshots(ctx context.Context, limit int) ([]options.Snapshot, error)
	LatestDeltas(ctx context.Context, limit int) ([]options.Delta, error)
	ListTopChanges(ctx context.Context, deltaID uuid.UUID) ([]options.TopStrikeChange, error)
}

type RelationSource interface {
	ListLatest(ctx context.Context, limit int) ([]relation.Snapshot, error)
}

type TickSource interface {
	LatestTicks(ctx context.Context, limit int) ([]market.Tick, error)
}

type SessionSource interface {
	Symbols(at time.Time) []session.SymbolState
}

// Sources bundles everything the report reads
type Sources struct {
	Runs     RunSource
	Options  OptionsSource
	Relation RelationSource
	Ticks    TickSource
	Sessions SessionSource
}

// DeltaWithChanges pairs a delta with its ranked strike changes
type DeltaWithChanges struct {
	Delta   options.Delta
	Changes []options.TopStrikeChange
}

// Report is a point-in-time view of the pipeline
type Report struct {
	GeneratedAt time.Time
	LatestRuns  []jobrun.Run
	Snapshots   []options.Snapshot
	Relations   []relation.Snapshot
	Ticks       []market.Tick
	Deltas      []DeltaWithChanges
	Sessions    []session.SymbolState
}

// Collect reads the latest state from every source
func Collect(ctx context.Context, src Sources, now time.Time) (*Report, error) {
	r := &Report{GeneratedAt: now}

	runs, err := src.Runs.Recent(ctx, runsLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list job runs")
	}
	latest := jobrun.LatestByJob(runs)
	for _, run := range latest {
		r.LatestRuns = append(r.LatestRuns, run)
	}
	sort.Slice(r.LatestRuns, func(i, j int) bool {
		return r.LatestRuns[i].JobName < r.LatestRuns[j].JobName
	})

	if r.Snapshots, err = src.Options.LatestSnapshots(ctx, snapshotsLimit); err != nil {
		return nil, errors.Wrap(err, "list options snapshots")
	}
	if r.Relations, err = src.Relation.ListLatest(ctx, relationLimit); err != nil {
		return nil, errors.Wrap(err, "list relation snapshots")
	}
	if r.Ticks, err = src.Ticks.LatestTicks(ctx, ticksLimit); err != nil {
		return nil, errors.Wrap(err, "list price ticks")
	}

	deltas, err := src.Options.LatestDeltas(ctx, deltasLimit)
	if err != nil {
		return nil, errors.Wrap(err, "list options deltas")
	}
	for _, d := range deltas {
		changes, err := src.Options.ListTopChanges(ctx, d.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "list top changes for delta %s", d.ID)
		}
		r.Deltas = append(r.Deltas, DeltaWithChanges{Delta: d, Changes: changes})
	}

	r.Sessions = src.Sessions.Symbols(now)
	return r, nil
}

// Render writes the report as aligned plain-text sections
func (r *Report) Render(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	section(w, "Job runs")
	if len(r.LatestRuns) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, run := range r.LatestRuns {
		line := fmt.Sprintf("  %s\t%s\t%s\t%s", run.JobName, run.Status, humanize.RelTime(run.StartedAt, r.GeneratedAt, "ago", "from now"), run.Duration().Round(time.Millisecond))
		if reason := run.Metadata.Reason(); reason != "" {
			line += "\treason=" + reason
		}
		if run.ErrorMessage != nil {
			line += "\terror=" + truncate(*run.ErrorMessage, 120)
		}
		fmt.Fprintln(w, line)
	}

	section(w, "Options snapshots")
	if len(r.Snapshots) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, s := range r.Snapshots {
		fmt.Fprintf(w, "  %s\t%s\t%s\tput=%s\tcall=%s\tdte=%s\tprice=%s\n",
			s.SnapshotTimeBKK, s.ViewType, s.SeriesName,
			humanize.CommafWithDigits(s.PutTotal, 2),
			humanize.CommafWithDigits(s.CallTotal, 2),
			optional(s.DTE), optional(s.ReferencePrice),
		)
	}

	section(w, "Relation snapshots")
	if len(r.Relations) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, s := range r.Relations {
		fmt.Fprintf(w, "  %s\topen=%s\tclosed=%s\tdegraded=%s\n",
			s.AnchorTime.UTC().Format(time.RFC3339),
			list(s.QualityFlags.OpenSymbols),
			list(s.QualityFlags.ClosedSymbols),
			list(s.QualityFlags.DegradedSymbols),
		)
		for _, p := range s.PairMetrics {
			fmt.Fprintf(w, "    %s\tcorr=%s\tbeta=%s\tz=%s\trs=%s\tn=%d\n",
				p.Pair, optional(p.Correlation), optional(p.Beta), optional(p.ZScore), optional(p.RelativeStrength), p.AlignedPoints)
		}
	}

	section(w, "Latest prices")
	if len(r.Ticks) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, t := range r.Ticks {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", t.Symbol, humanize.CommafWithDigits(t.Price, 4), humanize.RelTime(t.EventTime, r.GeneratedAt, "ago", "from now"))
	}

	section(w, "Options deltas")
	if len(r.Deltas) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range r.Deltas {
		fmt.Fprintf(w, "  %s\t%s\t%s\tput%+.2f\tcall%+.2f\tvol%+.2f\tfut%+.2f\n",
			d.Delta.SnapshotTimeBKK, d.Delta.ViewType, d.Delta.SeriesName,
			d.Delta.PutChange, d.Delta.CallChange, d.Delta.VolChange, d.Delta.FutureChange)
		for _, c := range d.Changes {
			fmt.Fprintf(w, "    #%d\tstrike=%s\ttotal%+.2f\tput%+.2f\tcall%+.2f\n",
				c.Rank, humanize.Commaf(c.Strike), c.TotalChange, c.PutChange, c.CallChange)
		}
	}

	section(w, "Symbol sessions")
	for _, s := range r.Sessions {
		state := "closed"
		if s.Open {
			state = "open"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", s.Symbol, state, s.Reason)
	}

	return w.Flush()
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n== %s\n", title)
}

func optional(v *float64) string {
	if v == nil {
		return "null"
	}
	return humanize.FtoaWithDigits(*v, 4)
}

func list(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
