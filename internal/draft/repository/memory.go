package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/botsports/empire/internal/draft/events"
	"github.com/botsports/empire/internal/draft/outbox"
	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
)

// MemoryStore implements engine.Store and outbox.Store in process memory.
// A transaction works on a deep copy of the state and swaps it in on
// success, so a failed transaction leaves nothing behind, same as the
// Postgres store.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	drafts map[uuid.UUID]models.Draft
	picks  map[uuid.UUID]models.Pick
	outbox []outbox.Event
}

var (
	_ engine.Store = (*MemoryStore)(nil)
	_ outbox.Store = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			drafts: make(map[uuid.UUID]models.Draft),
			picks:  make(map[uuid.UUID]models.Pick),
		},
	}
}

// RunInTransaction executes fn against a copy of the state; the copy
// replaces the live state only when fn succeeds.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	s.state = *work
	return nil
}

func (s *MemoryStore) GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getDraft(id)
}

func (s *MemoryStore) GetPick(ctx context.Context, id uuid.UUID) (*models.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getPick(id)
}

func (s *MemoryStore) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listPicks(draftID), nil
}

func (s *MemoryStore) ListAssignedPicksByTeam(ctx context.Context, draftID, teamID uuid.UUID) ([]models.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listAssignedPicksByTeam(draftID, teamID), nil
}

func (s *MemoryStore) PlayerTaken(ctx context.Context, draftID, playerID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.playerTaken(draftID, playerID), nil
}

func (s *MemoryStore) NextDeadline(ctx context.Context) (*engine.NextDeadline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.nextDeadline(), nil
}

func (s *MemoryStore) ListDraftsDueForPick(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listDraftsDueForPick(now, limit), nil
}

// FetchUnsentOutbox implements outbox.Store.
func (s *MemoryStore) FetchUnsentOutbox(ctx context.Context, limit int) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []outbox.Event
	for _, evt := range s.state.outbox {
		if evt.SentAt != nil {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkOutboxSent implements outbox.Store.
func (s *MemoryStore) MarkOutboxSent(ctx context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	for i := range s.state.outbox {
		if _, ok := wanted[s.state.outbox[i].ID]; ok && s.state.outbox[i].SentAt == nil {
			sentAt := now
			s.state.outbox[i].SentAt = &sentAt
		}
	}
	return nil
}

// memTx is the transactional view. It is only ever used while the store
// mutex is held, so its methods need no locking of their own.
type memTx struct {
	state *memState
}

var _ engine.Tx = (*memTx)(nil)

func (t *memTx) GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	return t.state.getDraft(id)
}

func (t *memTx) GetPick(ctx context.Context, id uuid.UUID) (*models.Pick, error) {
	return t.state.getPick(id)
}

func (t *memTx) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.Pick, error) {
	return t.state.listPicks(draftID), nil
}

func (t *memTx) ListAssignedPicksByTeam(ctx context.Context, draftID, teamID uuid.UUID) ([]models.Pick, error) {
	return t.state.listAssignedPicksByTeam(draftID, teamID), nil
}

func (t *memTx) PlayerTaken(ctx context.Context, draftID, playerID uuid.UUID) (bool, error) {
	return t.state.playerTaken(draftID, playerID), nil
}

func (t *memTx) NextDeadline(ctx context.Context) (*engine.NextDeadline, error) {
	return t.state.nextDeadline(), nil
}

func (t *memTx) ListDraftsDueForPick(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return t.state.listDraftsDueForPick(now, limit), nil
}

func (t *memTx) CreateDraft(ctx context.Context, draft *models.Draft) error {
	if _, exists := t.state.drafts[draft.ID]; exists {
		return fmt.Errorf("draft %s already exists", draft.ID)
	}
	t.state.drafts[draft.ID] = cloneDraft(*draft)
	return nil
}

func (t *memTx) SaveDraft(ctx context.Context, draft *models.Draft) error {
	if _, exists := t.state.drafts[draft.ID]; !exists {
		return fmt.Errorf("%w: draft %s", engine.ErrNotFound, draft.ID)
	}
	t.state.drafts[draft.ID] = cloneDraft(*draft)
	return nil
}

func (t *memTx) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	if _, exists := t.state.drafts[id]; !exists {
		return fmt.Errorf("%w: draft %s", engine.ErrNotFound, id)
	}
	delete(t.state.drafts, id)
	for pickID, pick := range t.state.picks {
		if pick.DraftID == id {
			delete(t.state.picks, pickID)
		}
	}
	return nil
}

func (t *memTx) CreatePicks(ctx context.Context, picks []models.Pick) error {
	for _, pick := range picks {
		if _, exists := t.state.picks[pick.ID]; exists {
			return fmt.Errorf("pick %s already exists", pick.ID)
		}
		t.state.picks[pick.ID] = pick
	}
	return nil
}

func (t *memTx) SavePick(ctx context.Context, pick *models.Pick) error {
	if _, exists := t.state.picks[pick.ID]; !exists {
		return fmt.Errorf("%w: pick %s", engine.ErrNotFound, pick.ID)
	}
	t.state.picks[pick.ID] = *pick
	return nil
}

func (t *memTx) VoidUnassignedPicks(ctx context.Context, draftID uuid.UUID) (int, error) {
	voided := 0
	for id, pick := range t.state.picks {
		if pick.DraftID == draftID && pick.PlayerID == nil && !pick.Voided {
			pick.Voided = true
			t.state.picks[id] = pick
			voided++
		}
	}
	return voided, nil
}

func (t *memTx) InsertOutboxEvent(ctx context.Context, draftID uuid.UUID, eventType events.Type, payload []byte) error {
	t.state.outbox = append(t.state.outbox, outbox.Event{
		ID:        uuid.New(),
		DraftID:   draftID,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *memState) getDraft(id uuid.UUID) (*models.Draft, error) {
	draft, ok := s.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: draft %s", engine.ErrNotFound, id)
	}
	out := cloneDraft(draft)
	return &out, nil
}

func (s *memState) getPick(id uuid.UUID) (*models.Pick, error) {
	pick, ok := s.picks[id]
	if !ok {
		return nil, fmt.Errorf("%w: pick %s", engine.ErrNotFound, id)
	}
	out := pick
	return &out, nil
}

func (s *memState) listPicks(draftID uuid.UUID) []models.Pick {
	var picks []models.Pick
	for _, pick := range s.picks {
		if pick.DraftID == draftID {
			picks = append(picks, pick)
		}
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i].Sequence < picks[j].Sequence })
	return picks
}

func (s *memState) listAssignedPicksByTeam(draftID, teamID uuid.UUID) []models.Pick {
	var picks []models.Pick
	for _, pick := range s.picks {
		if pick.DraftID == draftID && pick.TeamID == teamID && pick.PlayerID != nil {
			picks = append(picks, pick)
		}
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i].Sequence < picks[j].Sequence })
	return picks
}

func (s *memState) playerTaken(draftID, playerID uuid.UUID) bool {
	for _, pick := range s.picks {
		if pick.DraftID == draftID && !pick.Voided &&
			pick.PlayerID != nil && *pick.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (s *memState) nextDeadline() *engine.NextDeadline {
	var out *engine.NextDeadline
	for _, draft := range s.drafts {
		if draft.Status != models.DraftStatusInProgress || draft.NextDeadline == nil {
			continue
		}
		if out == nil || draft.NextDeadline.Before(*out.Deadline) {
			deadline := *draft.NextDeadline
			out = &engine.NextDeadline{DraftID: draft.ID, Deadline: &deadline}
		}
	}
	return out
}

func (s *memState) listDraftsDueForPick(now time.Time, limit int) []uuid.UUID {
	type due struct {
		id       uuid.UUID
		deadline time.Time
	}
	var dues []due
	for _, draft := range s.drafts {
		if draft.Status != models.DraftStatusInProgress || draft.NextDeadline == nil {
			continue
		}
		if !draft.NextDeadline.After(now) {
			dues = append(dues, due{id: draft.ID, deadline: *draft.NextDeadline})
		}
	}
	sort.Slice(dues, func(i, j int) bool { return dues[i].deadline.Before(dues[j].deadline) })
	if len(dues) > limit {
		dues = dues[:limit]
	}
	ids := make([]uuid.UUID, len(dues))
	for i, d := range dues {
		ids[i] = d.id
	}
	return ids
}

func (s *memState) clone() *memState {
	out := &memState{
		drafts: make(map[uuid.UUID]models.Draft, len(s.drafts)),
		picks:  make(map[uuid.UUID]models.Pick, len(s.picks)),
		outbox: append([]outbox.Event(nil), s.outbox...),
	}
	for id, draft := range s.drafts {
		out.drafts[id] = cloneDraft(draft)
	}
	for id, pick := range s.picks {
		out.picks[id] = pick
	}
	return out
}

// cloneDraft deep-copies pointer fields so callers cannot mutate stored
// state through a returned draft.
func cloneDraft(d models.Draft) models.Draft {
	d.Settings.DraftOrder = append([]uuid.UUID(nil), d.Settings.DraftOrder...)
	d.CurrentPick = clonePtr(d.CurrentPick)
	d.NextDeadline = clonePtr(d.NextDeadline)
	d.StartedAt = clonePtr(d.StartedAt)
	d.CompletedAt = clonePtr(d.CompletedAt)
	return d
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MemoryPlayerSource implements engine.PlayerSource over a fixed player set.
// When bound to a MemoryStore it honors the NotInDraft filter.
type MemoryPlayerSource struct {
	mu      sync.RWMutex
	players map[uuid.UUID]models.Player
	store   *MemoryStore
}

var _ engine.PlayerSource = (*MemoryPlayerSource)(nil)

// NewMemoryPlayerSource creates a player source. store may be nil, in which
// case the NotInDraft filter is ignored.
func NewMemoryPlayerSource(store *MemoryStore, players ...models.Player) *MemoryPlayerSource {
	s := &MemoryPlayerSource{
		players: make(map[uuid.UUID]models.Player, len(players)),
		store:   store,
	}
	for _, p := range players {
		s.players[p.ID] = p
	}
	return s
}

// AddPlayer registers or replaces a player.
func (s *MemoryPlayerSource) AddPlayer(p models.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = p
}

func (s *MemoryPlayerSource) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("player %s not found", id)
	}
	out := player
	out.Rank = clonePtr(player.Rank)
	return &out, nil
}

func (s *MemoryPlayerSource) ListEligiblePlayers(ctx context.Context, filter engine.PlayerFilter) ([]models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Player
	for _, player := range s.players {
		if !player.Active {
			continue
		}
		if filter.Position != "" && player.Position != filter.Position {
			continue
		}
		if filter.NotInDraft != uuid.Nil && s.store != nil {
			taken, err := s.store.PlayerTaken(ctx, filter.NotInDraft, player.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				continue
			}
		}
		p := player
		p.Rank = clonePtr(player.Rank)
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		switch {
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
