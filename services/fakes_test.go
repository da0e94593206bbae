package services

import (
	"context"
	"sort"
	"time"

	"github.com/recleague/tracker/models"
	"github.com/recleague/tracker/repositories"
)

// memDB backs the in-memory fakes the service tests run against. Each fake
// repository is a thin view over the shared store, so cross-repository
// effects (squad membership, game numbers) stay observable.
type memDB struct {
	sessions     map[int]*models.Session
	rounds       map[int]*models.Round
	squads       map[int]*models.Squad
	attendees    map[int]*models.Attendee
	players      map[int]*models.Player
	pending      map[int]*models.PendingGame
	completed    map[int]*models.CompletedGame
	participants map[int][]*models.GameParticipant
	nextID       int
}

func newMemDB() *memDB {
	return &memDB{
		sessions:     make(map[int]*models.Session),
		rounds:       make(map[int]*models.Round),
		squads:       make(map[int]*models.Squad),
		attendees:    make(map[int]*models.Attendee),
		players:      make(map[int]*models.Player),
		pending:      make(map[int]*models.PendingGame),
		completed:    make(map[int]*models.CompletedGame),
		participants: make(map[int][]*models.GameParticipant),
		nextID:       1,
	}
}

func (db *memDB) id() int {
	id := db.nextID
	db.nextID++
	return id
}

type stubTxManager struct{}

func (stubTxManager) WithTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type recordedEvent struct {
	Room  string
	Event interface{}
}

type fakeHub struct {
	events []recordedEvent
}

func (h *fakeHub) BroadcastToRoom(room string, event interface{}) {
	h.events = append(h.events, recordedEvent{Room: room, Event: event})
}

// --- sessions ---

type fakeSessionRepo struct{ db *memDB }

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	session.ID = r.db.id()
	session.CreatedAt = time.Now()
	r.db.sessions[session.ID] = session
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id int) (*models.Session, error) {
	s, ok := r.db.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) ListByTeam(ctx context.Context, teamID int) ([]*models.Session, error) {
	out := make([]*models.Session, 0)
	for _, s := range r.db.sessions {
		if s.TeamID == teamID {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeSessionRepo) UpdateStatus(ctx context.Context, id int, status models.SessionStatus) error {
	s, ok := r.db.sessions[id]
	if !ok {
		return repositories.ErrSessionNotFound
	}
	s.Status = status
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.db.sessions[id]; !ok {
		return repositories.ErrSessionNotFound
	}
	delete(r.db.sessions, id)
	return nil
}

// --- rounds ---

type fakeRoundRepo struct{ db *memDB }

func (r *fakeRoundRepo) Create(ctx context.Context, exec repositories.SQLExecutor, round *models.Round) error {
	round.ID = r.db.id()
	round.CreatedAt = time.Now()
	stored := *round
	stored.Squads = nil
	r.db.rounds[round.ID] = &stored
	return nil
}

func (r *fakeRoundRepo) GetByID(ctx context.Context, id int) (*models.Round, error) {
	round, ok := r.db.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	copied := *round
	return &copied, nil
}

func (r *fakeRoundRepo) ListBySession(ctx context.Context, sessionID int) ([]*models.Round, error) {
	out := make([]*models.Round, 0)
	for _, round := range r.db.rounds {
		if round.SessionID == sessionID {
			copied := *round
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *fakeRoundRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	if _, ok := r.db.rounds[id]; !ok {
		return repositories.ErrRoundNotFound
	}
	delete(r.db.rounds, id)
	return nil
}

// --- squads ---

type fakeSquadRepo struct{ db *memDB }

func copySquad(s *models.Squad) *models.Squad {
	copied := *s
	copied.MemberIDs = append([]int{}, s.MemberIDs...)
	return &copied
}

func (r *fakeSquadRepo) Create(ctx context.Context, exec repositories.SQLExecutor, squad *models.Squad) error {
	squad.ID = r.db.id()
	squad.CreatedAt = time.Now()
	r.db.squads[squad.ID] = copySquad(squad)
	return nil
}

func (r *fakeSquadRepo) GetByID(ctx context.Context, id int) (*models.Squad, error) {
	squad, ok := r.db.squads[id]
	if !ok {
		return nil, repositories.ErrSquadNotFound
	}
	return copySquad(squad), nil
}

func (r *fakeSquadRepo) ListByRound(ctx context.Context, roundID int) ([]*models.Squad, error) {
	out := make([]*models.Squad, 0)
	for _, squad := range r.db.squads {
		if squad.RoundID == roundID {
			out = append(out, copySquad(squad))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeSquadRepo) UpdateName(ctx context.Context, exec repositories.SQLExecutor, id int, name string, color *string) error {
	squad, ok := r.db.squads[id]
	if !ok {
		return repositories.ErrSquadNotFound
	}
	squad.Name = name
	squad.Color = color
	return nil
}

func (r *fakeSquadRepo) ReplaceMembers(ctx context.Context, exec repositories.SQLExecutor, squadID int, memberIDs []int) error {
	squad, ok := r.db.squads[squadID]
	if !ok {
		return repositories.ErrSquadNotFound
	}
	squad.MemberIDs = append([]int{}, memberIDs...)
	return nil
}

func (r *fakeSquadRepo) RemoveAttendeeFromSession(ctx context.Context, exec repositories.SQLExecutor, sessionID, attendeeID int) error {
	for _, squad := range r.db.squads {
		round, ok := r.db.rounds[squad.RoundID]
		if !ok || round.SessionID != sessionID {
			continue
		}
		kept := squad.MemberIDs[:0]
		for _, id := range squad.MemberIDs {
			if id != attendeeID {
				kept = append(kept, id)
			}
		}
		squad.MemberIDs = kept
	}
	return nil
}

func (r *fakeSquadRepo) DeleteByRound(ctx context.Context, exec repositories.SQLExecutor, roundID int) error {
	for id, squad := range r.db.squads {
		if squad.RoundID == roundID {
			delete(r.db.squads, id)
		}
	}
	return nil
}

// --- attendees ---

type fakeAttendeeRepo struct{ db *memDB }

func (r *fakeAttendeeRepo) Create(ctx context.Context, exec repositories.SQLExecutor, attendee *models.Attendee) error {
	for _, a := range r.db.attendees {
		if a.SessionID == attendee.SessionID && a.PlayerID == attendee.PlayerID && a.RemovedAt == nil {
			return repositories.ErrAttendeeConflict
		}
	}
	attendee.ID = r.db.id()
	attendee.CreatedAt = time.Now()
	stored := *attendee
	stored.Player = nil
	r.db.attendees[attendee.ID] = &stored
	return nil
}

func (r *fakeAttendeeRepo) GetByID(ctx context.Context, id int) (*models.Attendee, error) {
	a, ok := r.db.attendees[id]
	if !ok {
		return nil, repositories.ErrAttendeeNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAttendeeRepo) ListBySession(ctx context.Context, sessionID int) ([]*models.Attendee, error) {
	out := make([]*models.Attendee, 0)
	for _, a := range r.db.attendees {
		if a.SessionID != sessionID || a.RemovedAt != nil {
			continue
		}
		copied := *a
		if p, ok := r.db.players[a.PlayerID]; ok {
			copied.Player = p
		}
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAttendeeRepo) SoftRemove(ctx context.Context, exec repositories.SQLExecutor, id int, removedAt time.Time) error {
	a, ok := r.db.attendees[id]
	if !ok || a.RemovedAt != nil {
		return repositories.ErrAttendeeNotFound
	}
	a.RemovedAt = &removedAt
	return nil
}

// --- players ---

type fakePlayerRepo struct{ db *memDB }

func (r *fakePlayerRepo) Create(ctx context.Context, player *models.Player) error {
	player.ID = r.db.id()
	player.CreatedAt = time.Now()
	r.db.players[player.ID] = player
	return nil
}

func (r *fakePlayerRepo) GetByID(ctx context.Context, id int) (*models.Player, error) {
	p, ok := r.db.players[id]
	if !ok {
		return nil, repositories.ErrPlayerNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePlayerRepo) ListByTeam(ctx context.Context, teamID int) ([]*models.Player, error) {
	out := make([]*models.Player, 0)
	for _, p := range r.db.players {
		if p.TeamID == teamID {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mu > out[j].Mu })
	return out, nil
}

func (r *fakePlayerRepo) ListByIDs(ctx context.Context, ids []int) ([]*models.Player, error) {
	out := make([]*models.Player, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.db.players[id]; ok {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakePlayerRepo) UpdateName(ctx context.Context, id int, name string) error {
	p, ok := r.db.players[id]
	if !ok {
		return repositories.ErrPlayerNotFound
	}
	p.Name = name
	return nil
}

func (r *fakePlayerRepo) UpdateAvatarKey(ctx context.Context, id int, avatarKey *string) error {
	p, ok := r.db.players[id]
	if !ok {
		return repositories.ErrPlayerNotFound
	}
	p.AvatarKey = avatarKey
	return nil
}

func (r *fakePlayerRepo) UpdateRatingState(ctx context.Context, exec repositories.SQLExecutor, player *models.Player) error {
	p, ok := r.db.players[player.ID]
	if !ok {
		return repositories.ErrPlayerNotFound
	}
	p.Mu = player.Mu
	p.Sigma = player.Sigma
	p.Wins = player.Wins
	p.Losses = player.Losses
	p.WinStreak = player.WinStreak
	p.LossStreak = player.LossStreak
	return nil
}

func (r *fakePlayerRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.db.players[id]; !ok {
		return repositories.ErrPlayerNotFound
	}
	delete(r.db.players, id)
	return nil
}

// --- pending games ---

type fakePendingRepo struct{ db *memDB }

func (r *fakePendingRepo) Create(ctx context.Context, exec repositories.SQLExecutor, game *models.PendingGame) error {
	for _, g := range r.db.pending {
		if g.SessionID == game.SessionID && g.GameNumber == game.GameNumber {
			return repositories.ErrPendingGameNumberConflict
		}
	}
	game.ID = r.db.id()
	game.CreatedAt = time.Now()
	copied := *game
	r.db.pending[game.ID] = &copied
	return nil
}

func (r *fakePendingRepo) GetByID(ctx context.Context, id int) (*models.PendingGame, error) {
	g, ok := r.db.pending[id]
	if !ok {
		return nil, repositories.ErrPendingGameNotFound
	}
	copied := *g
	return &copied, nil
}

func (r *fakePendingRepo) ListBySession(ctx context.Context, sessionID int) ([]*models.PendingGame, error) {
	out := make([]*models.PendingGame, 0)
	for _, g := range r.db.pending {
		if g.SessionID == sessionID {
			copied := *g
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := r.db.rounds[out[i].RoundID], r.db.rounds[out[j].RoundID]
		if ri != nil && rj != nil && ri.Number != rj.Number {
			return ri.Number < rj.Number
		}
		return out[i].GameNumber < out[j].GameNumber
	})
	return out, nil
}

func (r *fakePendingRepo) ListByRound(ctx context.Context, roundID int) ([]*models.PendingGame, error) {
	out := make([]*models.PendingGame, 0)
	for _, g := range r.db.pending {
		if g.RoundID == roundID {
			copied := *g
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameNumber < out[j].GameNumber })
	return out, nil
}

func (r *fakePendingRepo) UpdateGameNumber(ctx context.Context, exec repositories.SQLExecutor, id, gameNumber int) error {
	g, ok := r.db.pending[id]
	if !ok {
		return repositories.ErrPendingGameNotFound
	}
	if gameNumber > 0 {
		for _, other := range r.db.pending {
			if other.ID != id && other.SessionID == g.SessionID && other.GameNumber == gameNumber {
				return repositories.ErrPendingGameNumberConflict
			}
		}
	}
	g.GameNumber = gameNumber
	return nil
}

func (r *fakePendingRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	if _, ok := r.db.pending[id]; !ok {
		return repositories.ErrPendingGameNotFound
	}
	delete(r.db.pending, id)
	return nil
}

func (r *fakePendingRepo) DeleteByRound(ctx context.Context, exec repositories.SQLExecutor, roundID int) error {
	for id, g := range r.db.pending {
		if g.RoundID == roundID {
			delete(r.db.pending, id)
		}
	}
	return nil
}

func (r *fakePendingRepo) MaxGameNumber(ctx context.Context, sessionID int) (int, error) {
	max := 0
	for _, g := range r.db.pending {
		if g.SessionID == sessionID && g.GameNumber > max {
			max = g.GameNumber
		}
	}
	for _, g := range r.db.completed {
		if g.SessionID == sessionID && g.GameNumber > max {
			max = g.GameNumber
		}
	}
	return max, nil
}

// --- completed games ---

type fakeCompletedRepo struct{ db *memDB }

func (r *fakeCompletedRepo) Create(ctx context.Context, exec repositories.SQLExecutor, game *models.CompletedGame) error {
	game.ID = r.db.id()
	game.CreatedAt = time.Now()
	copied := *game
	copied.Participants = nil
	r.db.completed[game.ID] = &copied
	return nil
}

func (r *fakeCompletedRepo) CreateParticipants(ctx context.Context, exec repositories.SQLExecutor, gameID int, participants []*models.GameParticipant) error {
	for _, p := range participants {
		p.ID = r.db.id()
		p.GameID = gameID
		copied := *p
		r.db.participants[gameID] = append(r.db.participants[gameID], &copied)
	}
	return nil
}

func (r *fakeCompletedRepo) GetByID(ctx context.Context, id int) (*models.CompletedGame, error) {
	g, ok := r.db.completed[id]
	if !ok {
		return nil, repositories.ErrCompletedGameNotFound
	}
	copied := *g
	copied.Participants = r.db.participants[id]
	return &copied, nil
}

func (r *fakeCompletedRepo) ListBySession(ctx context.Context, sessionID int) ([]*models.CompletedGame, error) {
	out := make([]*models.CompletedGame, 0)
	for _, g := range r.db.completed {
		if g.SessionID == sessionID {
			copied := *g
			copied.Participants = r.db.participants[g.ID]
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameNumber < out[j].GameNumber })
	return out, nil
}

func (r *fakeCompletedRepo) UpdateResult(ctx context.Context, exec repositories.SQLExecutor, id, scoreA, scoreB int, weight models.GameWeight) error {
	g, ok := r.db.completed[id]
	if !ok {
		return repositories.ErrCompletedGameNotFound
	}
	g.ScoreA = scoreA
	g.ScoreB = scoreB
	g.Weight = weight
	return nil
}
