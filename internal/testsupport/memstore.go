package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/market"
	"oidworker/internal/domain/options"
	"oidworker/internal/domain/reflink"
	"oidworker/internal/domain/relation"
	"oidworker/pkg/errors"
)

// TickStore is an in-memory market.Repository. Ticks are keyed by (symbol, minute).
type TickStore struct {
	mu    sync.Mutex
	ticks map[string]market.Tick
	Err   error
}

var _ market.Repository = (*TickStore)(nil)

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]market.Tick)}
}

// Add stores ticks, overwriting any tick of the same symbol and minute
func (s *TickStore) Add(ticks ...market.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ticks {
		t.EventTime = t.EventTime.UTC().Truncate(time.Minute)
		s.ticks[string(t.Symbol)+"|"+t.EventTime.Format(time.RFC3339)] = t
	}
}

func (s *TickStore) sorted() []market.Tick {
	out := make([]market.Tick, 0, len(s.ticks))
	for _, t := range s.ticks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].EventTime.Before(out[j].EventTime)
	})
	return out
}

func (s *TickStore) ListTicks(ctx context.Context, from, to time.Time) ([]market.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var out []market.Tick
	for _, t := range s.sorted() {
		if !t.EventTime.Before(from) && !t.EventTime.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *TickStore) LatestPrice(ctx context.Context, symbol market.Symbol, at time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}

	all := s.sorted()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Symbol == symbol && !all[i].EventTime.After(at) {
			return all[i].Price, nil
		}
	}
	return 0, errors.ErrNotFound
}

func (s *TickStore) LatestTicks(ctx context.Context, limit int) ([]market.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.sorted()
	var out []market.Tick
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// RelationStore is an in-memory relation.Repository keyed by anchor time
type RelationStore struct {
	mu        sync.Mutex
	snapshots map[int64]relation.Snapshot
	Upserts   int
	Err       error
}

var _ relation.Repository = (*RelationStore)(nil)

func NewRelationStore() *RelationStore {
	return &RelationStore{snapshots: make(map[int64]relation.Snapshot)}
}

func (s *RelationStore) Upsert(ctx context.Context, snapshot *relation.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	snap := *snapshot
	snap.UpdatedAt = time.Now().UTC()
	s.snapshots[snapshot.AnchorTime.UTC().UnixNano()] = snap
	s.Upserts++
	return nil
}

func (s *RelationStore) GetByAnchor(ctx context.Context, anchor time.Time) (*relation.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[anchor.UTC().UnixNano()]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &snap, nil
}

func (s *RelationStore) ListLatest(ctx context.Context, limit int) ([]relation.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]relation.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnchorTime.After(out[j].AnchorTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored snapshots
func (s *RelationStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// OptionsStore is an in-memory options.Repository
type OptionsStore struct {
	mu         sync.Mutex
	snapshots  map[uuid.UUID]options.Snapshot
	bars       map[uuid.UUID][]options.StrikeBar
	top        map[uuid.UUID][]options.TopActive
	deltas     map[uuid.UUID]options.Delta
	topChanges map[uuid.UUID][]options.TopStrikeChange
	Err        error
}

var _ options.Repository = (*OptionsStore)(nil)

func NewOptionsStore() *OptionsStore {
	return &OptionsStore{
		snapshots:  make(map[uuid.UUID]options.Snapshot),
		bars:       make(map[uuid.UUID][]options.StrikeBar),
		top:        make(map[uuid.UUID][]options.TopActive),
		deltas:     make(map[uuid.UUID]options.Delta),
		topChanges: make(map[uuid.UUID][]options.TopStrikeChange),
	}
}

func (s *OptionsStore) SaveSnapshot(ctx context.Context, snapshot *options.Snapshot, bars []options.StrikeBar, top []options.TopActive) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return uuid.Nil, s.Err
	}

	id := snapshot.ID
	for existingID, existing := range s.snapshots {
		if existing.ViewType == snapshot.ViewType && existing.SnapshotTime.Equal(snapshot.SnapshotTime) {
			id = existingID
			break
		}
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	snap := *snapshot
	snap.ID = id
	s.snapshots[id] = snap

	s.bars[id] = nil
	for _, b := range bars {
		b.SnapshotID = id
		s.bars[id] = append(s.bars[id], b)
	}
	s.top[id] = nil
	for _, t := range top {
		t.SnapshotID = id
		s.top[id] = append(s.top[id], t)
	}
	return id, nil
}

func (s *OptionsStore) FindPrevious(ctx context.Context, view options.ViewType, series string, before time.Time) (*options.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *options.Snapshot
	for _, snap := range s.snapshots {
		if snap.ViewType != view || snap.SeriesName != series || !snap.SnapshotTime.Before(before) {
			continue
		}
		if best == nil || snap.SnapshotTime.After(best.SnapshotTime) {
			c := snap
			best = &c
		}
	}
	if best == nil {
		return nil, errors.ErrNotFound
	}
	return best, nil
}

func (s *OptionsStore) ListBars(ctx context.Context, snapshotID uuid.UUID) ([]options.StrikeBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]options.StrikeBar(nil), s.bars[snapshotID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out, nil
}

func (s *OptionsStore) SaveDelta(ctx context.Context, delta *options.Delta, changes []options.StrikeChange) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return uuid.Nil, s.Err
	}

	id := delta.ID
	for existingID, existing := range s.deltas {
		if existing.CurrentSnapshotID == delta.CurrentSnapshotID {
			id = existingID
			break
		}
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	d := *delta
	d.ID = id
	s.deltas[id] = d

	s.topChanges[id] = nil
	for i, c := range changes {
		s.topChanges[id] = append(s.topChanges[id], options.TopStrikeChange{DeltaID: id, Rank: i + 1, StrikeChange: c})
	}
	return id, nil
}

func (s *OptionsStore) ListTopChanges(ctx context.Context, deltaID uuid.UUID) ([]options.TopStrikeChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]options.TopStrikeChange(nil), s.topChanges[deltaID]...), nil
}

func (s *OptionsStore) LatestSnapshots(ctx context.Context, limit int) ([]options.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]options.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotTime.After(out[j].SnapshotTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *OptionsStore) LatestDeltas(ctx context.Context, limit int) ([]options.Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]options.Delta, 0, len(s.deltas))
	for _, d := range s.deltas {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotTime.After(out[j].SnapshotTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Snapshots returns all stored snapshots ordered by time then view
func (s *OptionsStore) Snapshots() []options.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]options.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SnapshotTime.Equal(out[j].SnapshotTime) {
			return out[i].ViewType < out[j].ViewType
		}
		return out[i].SnapshotTime.Before(out[j].SnapshotTime)
	})
	return out
}

// TopActives returns the top actives of a snapshot
func (s *OptionsStore) TopActives(snapshotID uuid.UUID) []options.TopActive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]options.TopActive(nil), s.top[snapshotID]...)
}

// Deltas returns every stored delta
func (s *OptionsStore) Deltas() []options.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]options.Delta, 0, len(s.deltas))
	for _, d := range s.deltas {
		out = append(out, d)
	}
	return out
}

// JobRunStore is an in-memory jobrun.Repository
type JobRunStore struct {
	mu   sync.Mutex
	runs []jobrun.Run
	Err  error
}

var _ jobrun.Repository = (*JobRunStore)(nil)

func NewJobRunStore() *JobRunStore {
	return &JobRunStore{}
}

// Insert fails on a done ctx, as a database driver would
func (s *JobRunStore) Insert(ctx context.Context, run *jobrun.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.runs = append(s.runs, *run)
	return nil
}

func (s *JobRunStore) ListRecent(ctx context.Context, limit int) ([]jobrun.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := append([]jobrun.Run(nil), s.runs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Runs returns every recorded run in insertion order
func (s *JobRunStore) Runs() []jobrun.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jobrun.Run(nil), s.runs...)
}

// ByJob returns the runs of one job in insertion order
func (s *JobRunStore) ByJob(job jobrun.JobName) []jobrun.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []jobrun.Run
	for _, r := range s.runs {
		if r.JobName == job {
			out = append(out, r)
		}
	}
	return out
}

// LinkStore is an in-memory reflink.Repository
type LinkStore struct {
	mu    sync.Mutex
	links map[string]reflink.Link
	Err   error
}

var _ reflink.Repository = (*LinkStore)(nil)

func NewLinkStore(links ...reflink.Link) *LinkStore {
	s := &LinkStore{links: make(map[string]reflink.Link)}
	for _, l := range links {
		s.links[l.TradeDate] = l
	}
	return s
}

func (s *LinkStore) ExpireBefore(ctx context.Context, tradeDate string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for date, l := range s.links {
		if date < tradeDate && l.Status == reflink.StatusActive {
			l.Status = reflink.StatusExpired
			s.links[date] = l
			n++
		}
	}
	return n, nil
}

func (s *LinkStore) GetByTradeDate(ctx context.Context, tradeDate string) (*reflink.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	l, ok := s.links[tradeDate]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &l, nil
}

func (s *LinkStore) Upsert(ctx context.Context, link *reflink.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := *link
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now().UTC()
	}
	s.links[l.TradeDate] = l
	return nil
}

// Get returns the stored link for a trade date
func (s *LinkStore) Get(tradeDate string) (reflink.Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[tradeDate]
	return l, ok
}

// ExtractorFunc adapts a function to options.Extractor
type ExtractorFunc func(ctx context.Context, url string, view options.ViewType, tradeDate string) (*options.ExtractedView, error)

func (f ExtractorFunc) Extract(ctx context.Context, url string, view options.ViewType, tradeDate string) (*options.ExtractedView, error) {
	return f(ctx, url, view, tradeDate)
}
