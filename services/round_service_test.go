package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recleague/tracker/engine"
	"github.com/recleague/tracker/models"
)

type fixture struct {
	db       *memDB
	hub      *fakeHub
	sessions SessionService
	rounds   RoundService
	schedule ScheduleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	hub := &fakeHub{}
	locks := NewSessionLocks()
	tx := stubTxManager{}

	sessionRepo := &fakeSessionRepo{db: db}
	roundRepo := &fakeRoundRepo{db: db}
	squadRepo := &fakeSquadRepo{db: db}
	attendeeRepo := &fakeAttendeeRepo{db: db}
	playerRepo := &fakePlayerRepo{db: db}
	pendingRepo := &fakePendingRepo{db: db}
	completedRepo := &fakeCompletedRepo{db: db}

	return &fixture{
		db:  db,
		hub: hub,
		sessions: NewSessionService(tx, sessionRepo, attendeeRepo, playerRepo,
			roundRepo, squadRepo, pendingRepo, completedRepo, hub, locks),
		rounds: NewRoundService(tx, sessionRepo, roundRepo, squadRepo,
			attendeeRepo, pendingRepo, hub, locks),
		schedule: NewScheduleService(tx, sessionRepo, roundRepo, squadRepo,
			attendeeRepo, playerRepo, pendingRepo, completedRepo, hub, locks),
	}
}

func (f *fixture) seedSession(status models.SessionStatus) *models.Session {
	id := f.db.id()
	session := &models.Session{ID: id, TeamID: 1, Name: "Tuesday night", Date: time.Now(), Status: status}
	f.db.sessions[id] = session
	return session
}

func (f *fixture) seedPlayer(name string, mu float64) *models.Player {
	id := f.db.id()
	player := &models.Player{ID: id, TeamID: 1, Name: name, Mu: mu, Sigma: engine.InitialSigma}
	f.db.players[id] = player
	return player
}

func (f *fixture) seedAttendee(sessionID, playerID int) *models.Attendee {
	id := f.db.id()
	attendee := &models.Attendee{ID: id, SessionID: sessionID, PlayerID: playerID, CreatedAt: time.Now()}
	f.db.attendees[id] = attendee
	return attendee
}

// seedPool creates n players with the given mus and registers them all.
func (f *fixture) seedPool(sessionID int, mus ...float64) []*models.Attendee {
	attendees := make([]*models.Attendee, 0, len(mus))
	for i, mu := range mus {
		player := f.seedPlayer(poolNames[i%len(poolNames)], mu)
		attendees = append(attendees, f.seedAttendee(sessionID, player.ID))
	}
	return attendees
}

var poolNames = []string{"Ana", "Bram", "Cleo", "Dev", "Esa", "Finn", "Gus", "Hana", "Ivo", "Jo"}

func TestCreateRound(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Number)
	assert.Equal(t, 3, round.SquadCount)
	require.Len(t, round.Squads, 3)
	assert.Equal(t, "Squad 1", round.Squads[0].Name)
	assert.Equal(t, "Squad 3", round.Squads[2].Name)
	for _, squad := range round.Squads {
		assert.Empty(t, squad.MemberIDs)
	}

	second, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Number)
}

func TestCreateRoundRejectsBadCount(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	ctx := context.Background()

	_, err := f.rounds.CreateRound(ctx, session.ID, 1)
	assert.ErrorIs(t, err, ErrSquadCountInvalid)
	_, err = f.rounds.CreateRound(ctx, session.ID, 9)
	assert.ErrorIs(t, err, ErrSquadCountInvalid)
}

func TestCreateRoundClosedSession(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionClosed)

	_, err := f.rounds.CreateRound(context.Background(), session.ID, 2)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestAutoAssignBalancedPlacesEveryone(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	attendees := f.seedPool(session.ID, 31.2, 24.9, 18.4, 27.0, 22.5, 25.8, 20.1)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	result, err := f.rounds.AutoAssign(ctx, round.ID, engine.StrategyBalanced, engine.ScopeOverwrite)
	require.NoError(t, err)
	assert.Empty(t, result.Unplaced)
	assert.Equal(t, 4, result.IdealMax)

	seen := make(map[int]int)
	for _, squad := range result.Round.Squads {
		for _, id := range squad.MemberIDs {
			seen[id]++
		}
	}
	assert.Len(t, seen, len(attendees))
	for _, count := range seen {
		assert.Equal(t, 1, count)
	}

	// The assignment survives a reload.
	reloaded, err := f.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	total := 0
	for _, squad := range reloaded.Squads {
		total += len(squad.MemberIDs)
	}
	assert.Equal(t, len(attendees), total)
}

func TestAutoAssignUnassignedScopeKeepsSeats(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	attendees := f.seedPool(session.ID, 25, 25, 25, 25)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	// Seat one attendee by hand, then fill the rest.
	_, err = f.rounds.ToggleAssignment(ctx, round.ID, round.Squads[0].ID, attendees[0].ID)
	require.NoError(t, err)

	result, err := f.rounds.AutoAssign(ctx, round.ID, engine.StrategyBalanced, engine.ScopeUnassigned)
	require.NoError(t, err)
	assert.Contains(t, result.Round.Squads[0].MemberIDs, attendees[0].ID)
}

func TestToggleAssignment(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	attendees := f.seedPool(session.ID, 25, 25, 25, 25)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)
	squadA, squadB := round.Squads[0], round.Squads[1]

	// idealMax for 4 attendees in 2 squads is 2.
	_, err = f.rounds.ToggleAssignment(ctx, round.ID, squadA.ID, attendees[0].ID)
	require.NoError(t, err)
	_, err = f.rounds.ToggleAssignment(ctx, round.ID, squadA.ID, attendees[1].ID)
	require.NoError(t, err)

	// Third click on a full squad is blocked.
	_, err = f.rounds.ToggleAssignment(ctx, round.ID, squadA.ID, attendees[2].ID)
	assert.ErrorIs(t, err, engine.ErrSquadAtCapacity)

	// Moving between squads works while the target has room.
	updated, err := f.rounds.ToggleAssignment(ctx, round.ID, squadB.ID, attendees[1].ID)
	require.NoError(t, err)
	assert.NotContains(t, updated.Squads[0].MemberIDs, attendees[1].ID)
	assert.Contains(t, updated.Squads[1].MemberIDs, attendees[1].ID)

	// Clicking the attendee's own squad unassigns them.
	updated, err = f.rounds.ToggleAssignment(ctx, round.ID, squadA.ID, attendees[0].ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Squads[0].MemberIDs)
}

func TestToggleAssignmentUnknownAttendee(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	f.seedPool(session.ID, 25, 25)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	_, err = f.rounds.ToggleAssignment(ctx, round.ID, round.Squads[0].ID, 9999)
	assert.ErrorIs(t, err, ErrAttendeeNotFound)
}

func TestEditRound(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	attendees := f.seedPool(session.ID, 25, 25, 25)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	red := "red"
	result, err := f.rounds.EditRound(ctx, round.ID, []SquadEdit{
		{SquadID: round.Squads[0].ID, Name: "Reds", Color: &red, MemberIDs: []int{attendees[0].ID, attendees[1].ID}},
		{SquadID: round.Squads[1].ID, Name: "Blues", MemberIDs: []int{attendees[2].ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Reds", result.Round.Squads[0].Name)
	assert.Equal(t, &red, result.Round.Squads[0].Color)
	assert.Equal(t, []int{attendees[2].ID}, result.Round.Squads[1].MemberIDs)
	assert.Empty(t, result.OverCapacity)

	reloaded, err := f.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, "Blues", reloaded.Squads[1].Name)
}

func TestEditRoundRejectsDoubleAssignment(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	attendees := f.seedPool(session.ID, 25, 25)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	_, err = f.rounds.EditRound(ctx, round.ID, []SquadEdit{
		{SquadID: round.Squads[0].ID, Name: "A", MemberIDs: []int{attendees[0].ID}},
		{SquadID: round.Squads[1].ID, Name: "B", MemberIDs: []int{attendees[0].ID, attendees[1].ID}},
	})
	assert.ErrorIs(t, err, ErrAttendeeDoubleAssigned)

	// Nothing was written.
	reloaded, err := f.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Squads[0].MemberIDs)
}

func TestEditRoundSquadCountImmutable(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	_, err = f.rounds.EditRound(ctx, round.ID, []SquadEdit{
		{SquadID: round.Squads[0].ID, Name: "A"},
	})
	assert.ErrorIs(t, err, ErrSquadCountImmutable)
}

func TestEditRoundAllowsOverCapacityWithWarning(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	attendees := f.seedPool(session.ID, 25, 25, 25, 25)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	// idealMax is 2; stacking three into one squad is allowed but flagged.
	result, err := f.rounds.EditRound(ctx, round.ID, []SquadEdit{
		{SquadID: round.Squads[0].ID, Name: "A", MemberIDs: []int{attendees[0].ID, attendees[1].ID, attendees[2].ID}},
		{SquadID: round.Squads[1].ID, Name: "B", MemberIDs: []int{attendees[3].ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.OverCapacity)
	assert.Len(t, result.Round.Squads[0].MemberIDs, 3)
}

func TestDeleteRoundKeepsCompletedGames(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	f.seedPool(session.ID, 26, 24, 25, 25)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)
	_, err = f.rounds.AutoAssign(ctx, round.ID, engine.StrategyBalanced, engine.ScopeOverwrite)
	require.NoError(t, err)

	first, err := f.schedule.AppendGame(ctx, session.ID, round.ID, round.Squads[0].ID, round.Squads[1].ID)
	require.NoError(t, err)
	completed, err := f.schedule.CompleteGame(ctx, session.ID, first.ID, GameResult{ScoreA: 3, ScoreB: 1})
	require.NoError(t, err)

	second, err := f.schedule.AppendGame(ctx, session.ID, round.ID, round.Squads[1].ID, round.Squads[0].ID)
	require.NoError(t, err)

	require.NoError(t, f.rounds.DeleteRound(ctx, round.ID))

	_, err = f.rounds.GetRound(ctx, round.ID)
	assert.ErrorIs(t, err, ErrRoundNotFound)
	_, ok := f.db.pending[second.ID]
	assert.False(t, ok, "pending games of the round must be removed")
	_, ok = f.db.completed[completed.ID]
	assert.True(t, ok, "completed games are historical record and must stay")
}

func TestAddPlayersToPool(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	f.seedPool(session.ID, 25, 25, 25, 25)
	ctx := context.Background()

	roundOne, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)
	roundTwo, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	late := f.seedPlayer("Kiri", 25)

	// Without an assignment for every round the addition is rejected whole.
	_, err = f.rounds.AddPlayersToPool(ctx, session.ID, []PoolAddition{
		{PlayerID: late.ID, SquadByRound: map[int]int{roundOne.ID: roundOne.Squads[0].ID}},
	})
	assert.ErrorIs(t, err, ErrNewcomerUnassigned)

	result, err := f.rounds.AddPlayersToPool(ctx, session.ID, []PoolAddition{
		{PlayerID: late.ID, SquadByRound: map[int]int{
			roundOne.ID: roundOne.Squads[0].ID,
			roundTwo.ID: roundTwo.Squads[1].ID,
		}},
	})
	require.NoError(t, err)
	require.Len(t, result.Attendees, 1)

	r1, err := f.rounds.GetRound(ctx, roundOne.ID)
	require.NoError(t, err)
	assert.Contains(t, r1.Squads[0].MemberIDs, result.Attendees[0].ID)
	r2, err := f.rounds.GetRound(ctx, roundTwo.ID)
	require.NoError(t, err)
	assert.Contains(t, r2.Squads[1].MemberIDs, result.Attendees[0].ID)
}

func TestAddPlayersToPoolRejectsForeignSquad(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	f.seedPool(session.ID, 25, 25)
	ctx := context.Background()

	roundOne, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)
	roundTwo, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	late := f.seedPlayer("Kiri", 25)
	_, err = f.rounds.AddPlayersToPool(ctx, session.ID, []PoolAddition{
		{PlayerID: late.ID, SquadByRound: map[int]int{
			roundOne.ID: roundTwo.Squads[0].ID, // squad from the wrong round
			roundTwo.ID: roundTwo.Squads[1].ID,
		}},
	})
	assert.ErrorIs(t, err, ErrSquadsRoundMismatch)
}

func TestAddAttendeeBlockedOnceRoundsExist(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	player := f.seedPlayer("Ana", 25)
	ctx := context.Background()

	attendee, err := f.sessions.AddAttendee(ctx, session.ID, player.ID)
	require.NoError(t, err)
	require.NotZero(t, attendee.ID)

	_, err = f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)

	other := f.seedPlayer("Bram", 25)
	_, err = f.sessions.AddAttendee(ctx, session.ID, other.ID)
	assert.ErrorIs(t, err, ErrRoundsRequireAssignment)
}

func TestRemoveAttendeeClearsSquads(t *testing.T) {
	f := newFixture(t)
	session := f.seedSession(models.SessionOpen)
	attendees := f.seedPool(session.ID, 25, 25, 25, 25)
	ctx := context.Background()

	round, err := f.rounds.CreateRound(ctx, session.ID, 2)
	require.NoError(t, err)
	_, err = f.rounds.ToggleAssignment(ctx, round.ID, round.Squads[0].ID, attendees[0].ID)
	require.NoError(t, err)

	require.NoError(t, f.sessions.RemoveAttendee(ctx, session.ID, attendees[0].ID))

	reloaded, err := f.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.NotContains(t, reloaded.Squads[0].MemberIDs, attendees[0].ID)

	// Removing twice reports not found.
	err = f.sessions.RemoveAttendee(ctx, session.ID, attendees[0].ID)
	assert.ErrorIs(t, err, ErrAttendeeNotFound)
}
