package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/shuuro/go/internal/board"
	"github.com/mcdev12/shuuro/go/internal/events"
	"github.com/mcdev12/shuuro/go/internal/models"
)

const idLength = 12

// Settings tunes the registry.
type Settings struct {
	Variants      map[string]Variant
	PollInterval  time.Duration
	SweepInterval time.Duration
	QueueSize     int
	StoreTimeout  time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Variants: map[string]Variant{
			"shuuro8":      {Name: "shuuro8", Family: "chess8", Credits: 350},
			"shuuro8-lite": {Name: "shuuro8-lite", Family: "chess8", Credits: 200},
		},
		PollInterval:  time.Second,
		SweepInterval: time.Minute,
		QueueSize:     1024,
		StoreTimeout:  5 * time.Second,
	}
}

// Observer receives every accepted change. It is called with the match
// locked, so it must not block or call back into the session.
type Observer interface {
	MatchStarted(m models.Match, activeGames int)
	MatchUpdated(u Update)
}

type nopObserver struct{}

func (nopObserver) MatchStarted(models.Match, int) {}
func (nopObserver) MatchUpdated(Update)            {}

type partition struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// job is one unit of work for the persistence writer.
type job struct {
	matchID string
	upsert  *models.Match
	ply     *models.Ply
	event   *events.Event
}

// Registry owns every live match, partitioned by board family.
type Registry struct {
	clock      clockwork.Clock
	settings   Settings
	families   map[string]board.Family
	partitions map[string]*partition
	store      Store
	publisher  events.Publisher
	observer   Observer

	jobsMu sync.RWMutex
	jobs   chan job
	closed bool
	writer sync.WaitGroup

	// ended matches stay readable here until their final save is stored
	retiredMu sync.Mutex
	retired   map[string]*Session
	finals    []job
	wake      chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	monitors sync.WaitGroup
}

// NewRegistry builds a registry and starts its persistence writer. Close must
// be called on shutdown.
func NewRegistry(clk clockwork.Clock, settings Settings, store Store, publisher events.Publisher, observer Observer, families ...board.Family) *Registry {
	if observer == nil {
		observer = nopObserver{}
	}
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	if settings.QueueSize <= 0 {
		settings.QueueSize = DefaultSettings().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		clock:      clk,
		settings:   settings,
		families:   make(map[string]board.Family, len(families)),
		partitions: make(map[string]*partition, len(families)),
		store:      store,
		publisher:  publisher,
		observer:   observer,
		jobs:       make(chan job, settings.QueueSize),
		retired:    make(map[string]*Session),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, fam := range families {
		r.families[fam.Name()] = fam
		r.partitions[fam.Name()] = &partition{sessions: make(map[string]*Session)}
	}

	r.writer.Add(1)
	go r.runWriter()
	return r
}

// Create starts a new match between players and its timeout monitor.
func (r *Registry) Create(ctx context.Context, variant string, players [2]string, tc TimeControl) (*Session, error) {
	v, ok := r.settings.Variants[variant]
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
	fam, ok := r.families[v.Family]
	if !ok {
		return nil, fmt.Errorf("unknown board family %q for variant %q", v.Family, variant)
	}

	id, err := r.newID(ctx)
	if err != nil {
		return nil, err
	}

	s := NewSession(id, v, fam, players, tc, r.clock)
	r.track(s)

	snap := s.Snapshot()
	r.enqueue(job{matchID: id, upsert: &snap, event: r.startedEvent(snap)})

	log.Info().
		Str("match_id", id).
		Str("variant", variant).
		Str("white", players[models.White]).
		Str("black", players[models.Black]).
		Msg("match created")

	r.observer.MatchStarted(snap, r.Count())
	return s, nil
}

func (r *Registry) newID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
		if _, live := r.Get(id); live {
			continue
		}
		exists, err := r.store.Exists(ctx, id)
		if err != nil {
			// a fresh random id is unique with overwhelming probability
			log.Warn().Err(err).Str("match_id", id).Msg("could not check id against store")
			return id, nil
		}
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("failed to allocate a unique match id")
}

func (r *Registry) track(s *Session) {
	s.onUpdate = r.commit

	p := r.partitions[s.family.Name()]
	p.mu.Lock()
	p.sessions[s.ID()] = s
	p.mu.Unlock()

	m := newTimeoutMonitor(s, r.Get, r.clock, r.settings.PollInterval)
	r.monitors.Add(1)
	go func() {
		defer r.monitors.Done()
		m.Run(r.ctx)
	}()
}

// Get returns the live match with id.
func (r *Registry) Get(id string) (*Session, bool) {
	for _, p := range r.partitions {
		p.mu.RLock()
		s, ok := p.sessions[id]
		p.mu.RUnlock()
		if ok {
			return s, true
		}
	}
	return nil, false
}

// Lookup returns the document of a live match, or the stored one for a match
// that is no longer live. An ended match whose final save is still queued is
// served from memory.
func (r *Registry) Lookup(ctx context.Context, id string) (models.Match, error) {
	if s, ok := r.Get(id); ok {
		return s.Snapshot(), nil
	}
	r.retiredMu.Lock()
	s, ok := r.retired[id]
	r.retiredMu.Unlock()
	if ok {
		return s.Snapshot(), nil
	}
	return r.store.Get(ctx, id)
}

// Remove detaches a match. Its monitor exits on the next poll.
func (r *Registry) Remove(id string) bool {
	for _, p := range r.partitions {
		p.mu.Lock()
		_, ok := p.sessions[id]
		delete(p.sessions, id)
		p.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

// Count returns the number of live matches.
func (r *Registry) Count() int {
	n := 0
	for _, p := range r.partitions {
		p.mu.RLock()
		n += len(p.sessions)
		p.mu.RUnlock()
	}
	return n
}

// sessions copies the live sessions so no partition lock is held while a
// session lock is taken.
func (r *Registry) sessions() []*Session {
	var out []*Session
	for _, p := range r.partitions {
		p.mu.RLock()
		for _, s := range p.sessions {
			out = append(out, s)
		}
		p.mu.RUnlock()
	}
	return out
}

// Unfinished returns snapshots of every live match.
func (r *Registry) Unfinished() []models.Match {
	live := r.sessions()
	out := make([]models.Match, 0, len(live))
	for _, s := range live {
		if m := s.Snapshot(); m.Stage != models.StageEnded {
			out = append(out, m)
		}
	}
	return out
}

// LoadUnfinished restores the unfinished matches from the store.
func (r *Registry) LoadUnfinished(ctx context.Context) (int, error) {
	docs, err := r.store.LoadUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load unfinished matches: %w", err)
	}

	restored := 0
	for _, doc := range docs {
		fam, ok := r.families[doc.Family]
		if !ok {
			log.Warn().Str("match_id", doc.ID).Str("family", doc.Family).Msg("skipping match of unknown family")
			continue
		}
		if _, live := r.Get(doc.ID); live {
			continue
		}
		s, err := RestoreSession(doc, fam, r.clock)
		if err != nil {
			log.Error().Err(err).Str("match_id", doc.ID).Msg("failed to restore match")
			continue
		}
		r.track(s)
		restored++
	}

	log.Info().Int("restored", restored).Int("stored", len(docs)).Msg("unfinished matches loaded")
	return restored, nil
}

// SaveAll writes every live match, and every ended one still waiting for its
// final save, to the store synchronously.
func (r *Registry) SaveAll(ctx context.Context) error {
	live := r.sessions()
	r.retiredMu.Lock()
	for _, s := range r.retired {
		live = append(live, s)
	}
	r.retiredMu.Unlock()

	var errs []error
	for _, s := range live {
		if err := r.store.Upsert(ctx, s.Snapshot()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep queues a save of every live match.
func (r *Registry) Sweep() {
	for _, s := range r.sessions() {
		snap := s.Snapshot()
		r.enqueue(job{matchID: snap.ID, upsert: &snap})
	}
}

// RunSweeper sweeps at the configured interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := r.clock.NewTicker(r.settings.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

// Close stops every monitor, drains the writer and saves all live matches.
func (r *Registry) Close(ctx context.Context) error {
	r.cancel()
	r.monitors.Wait()

	r.jobsMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.jobsMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.writer.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("failed to drain persistence queue: %w", ctx.Err())
	}

	if err := r.SaveAll(ctx); err != nil {
		return fmt.Errorf("failed to save matches on exit: %w", err)
	}
	log.Info().Msg("match registry closed")
	return nil
}

// commit runs with the session locked.
func (r *Registry) commit(u Update) {
	j := job{matchID: u.Match.ID}
	switch {
	case u.Ended:
		m := u.Match
		j.upsert = &m
		j.event = r.endedEvent(m)
	case u.Ply != nil && !u.StageChanged:
		ply := *u.Ply
		j.ply = &ply
	default:
		m := u.Match
		j.upsert = &m
	}
	if u.Ended {
		r.retire(u.Match.ID, j)
		u.ActiveGames = r.Count()
		log.Info().
			Str("match_id", u.Match.ID).
			Int("status", int(u.Match.Status)).
			Str("result", u.Match.Result).
			Msg("match ended")
	} else {
		r.enqueue(j)
	}
	r.observer.MatchUpdated(u)
}

// retire takes an ended match out of the live set and hands its final save to
// the writer without blocking. Lookup keeps serving the match until that save
// has run.
func (r *Registry) retire(id string, final job) {
	var s *Session
	for _, p := range r.partitions {
		p.mu.Lock()
		if found, ok := p.sessions[id]; ok {
			s = found
			delete(p.sessions, id)
		}
		p.mu.Unlock()
		if s != nil {
			break
		}
	}

	r.retiredMu.Lock()
	if s != nil {
		r.retired[id] = s
	}
	r.finals = append(r.finals, final)
	r.retiredMu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// enqueue hands a job to the writer. Jobs are dropped when the queue is full
// and picked up again by the next sweep.
func (r *Registry) enqueue(j job) {
	r.jobsMu.RLock()
	defer r.jobsMu.RUnlock()
	if r.closed {
		log.Warn().Str("match_id", j.matchID).Msg("registry closed, dropping persistence job")
		return
	}
	select {
	case r.jobs <- j:
	default:
		log.Warn().Str("match_id", j.matchID).Msg("persistence queue full, dropping job")
	}
}

func (r *Registry) runWriter() {
	defer r.writer.Done()
	for {
		select {
		case <-r.wake:
			r.drainQueued()
			r.drainFinals()
		case j, ok := <-r.jobs:
			if !ok {
				r.drainFinals()
				return
			}
			r.process(j)
		}
	}
}

// drainQueued runs the jobs already in the queue so a final save is never
// overtaken by an older write for the same match.
func (r *Registry) drainQueued() {
	for {
		select {
		case j, ok := <-r.jobs:
			if !ok {
				return
			}
			r.process(j)
		default:
			return
		}
	}
}

func (r *Registry) drainFinals() {
	for {
		r.retiredMu.Lock()
		if len(r.finals) == 0 {
			r.retiredMu.Unlock()
			return
		}
		j := r.finals[0]
		r.finals = r.finals[1:]
		r.retiredMu.Unlock()

		r.process(j)

		r.retiredMu.Lock()
		delete(r.retired, j.matchID)
		r.retiredMu.Unlock()
	}
}

func (r *Registry) process(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.settings.StoreTimeout)
	defer cancel()

	var err error
	switch {
	case j.upsert != nil:
		err = r.store.Upsert(ctx, *j.upsert)
	case j.ply != nil:
		err = r.store.AppendMove(ctx, j.matchID, *j.ply)
	}
	if err != nil {
		log.Error().Err(err).Str("match_id", j.matchID).Msg("failed to persist match")
	}

	if j.event != nil {
		if err := r.publisher.Publish(ctx, *j.event); err != nil {
			log.Error().Err(err).Str("match_id", j.matchID).Str("event_type", j.event.Type).Msg("failed to publish match event")
		}
	}
}

func (r *Registry) startedEvent(m models.Match) *events.Event {
	ev, err := events.New(events.TypeMatchStarted, m.ID, events.MatchStartedPayload{
		MatchID:   m.ID,
		Variant:   m.Variant,
		White:     m.Players[models.White],
		Black:     m.Players[models.Black],
		Minutes:   m.Minutes,
		Increment: m.Increment,
		StartedAt: m.CreatedAt,
	}, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("match_id", m.ID).Msg("failed to build match event")
		return nil
	}
	return &ev
}

func (r *Registry) endedEvent(m models.Match) *events.Event {
	ev, err := events.New(events.TypeMatchEnded, m.ID, events.MatchEndedPayload{
		MatchID:    m.ID,
		Variant:    m.Variant,
		White:      m.Players[models.White],
		Black:      m.Players[models.Black],
		Status:     int(m.Status),
		Result:     m.Result,
		ShopMoves:  len(m.History.Shop),
		FightMoves: len(m.History.Fight),
		EndedAt:    m.UpdatedAt,
	}, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("match_id", m.ID).Msg("failed to build match event")
		return nil
	}
	return &ev
}
