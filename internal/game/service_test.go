package game_test

import (
	"context"
	"sync"
	"testing"

	"betting_ledger/internal/events"
	"betting_ledger/internal/game"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/testutil"
	"betting_ledger/internal/users"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	db      *testutil.TestDatabase
	wallet  *ledger.Service
	games   *game.Service
	houseID string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	testDB := testutil.SetupTestDatabase(t)
	runner := testDB.Runner()
	cfg := testutil.TestConfig(t)
	house := testutil.CreateTestUser(t, testDB.DB, "house")

	wallet := ledger.NewService(runner, ledger.NewTransactionRepository(), users.NewUserRepository(testDB.DB), events.NoopPublisher{})
	games := game.NewService(runner, game.NewGameRepository(), wallet, cfg, house.ID, events.NoopPublisher{})
	return &harness{db: testDB, wallet: wallet, games: games, houseID: house.ID}
}

func (h *harness) player(t *testing.T, name, funds string) string {
	t.Helper()
	u := testutil.CreateTestUser(t, h.db.DB, name)
	if funds != "0" {
		testutil.Fund(t, h.wallet, u.ID, funds)
	}
	return u.ID
}

func (h *harness) newGame(t *testing.T, creator, gameType, stake string) *game.Game {
	t.Helper()
	g, err := h.games.Create(context.Background(), game.CreateRequest{
		CreatorID:   creator,
		GameType:    gameType,
		StakeAmount: decimal.RequireFromString(stake),
	})
	require.NoError(t, err)
	return g
}

func TestGameSingleWinnerScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "100")
	b := h.player(t, "b", "50")

	g := h.newGame(t, a, "default", "50")
	_, err := h.games.Join(ctx, g.ID, a)
	require.NoError(t, err)
	_, err = h.games.Join(ctx, g.ID, b)
	require.NoError(t, err)

	detail, err := h.games.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(detail.TotalPot))

	_, err = h.games.Start(ctx, g.ID)
	require.NoError(t, err)

	settled, err := h.games.Settle(ctx, g.ID, map[string]game.Result{a: game.ResultWin, b: game.ResultLoss})
	require.NoError(t, err)
	assert.Equal(t, game.StatusCompleted, settled.Status)

	testutil.RequireBalance(t, h.wallet, a, "140")
	testutil.RequireBalance(t, h.wallet, b, "0")
	testutil.RequireBalance(t, h.wallet, h.houseID, "10")

	for _, e := range settled.Entries {
		require.NotNil(t, e.Result)
		if e.UserID == a {
			assert.Equal(t, game.ResultWin, *e.Result)
			assert.True(t, decimal.NewFromInt(90).Equal(e.PayoutAmount))
		} else {
			assert.Equal(t, game.ResultLoss, *e.Result)
			assert.True(t, e.PayoutAmount.IsZero())
		}
	}

	_, err = h.games.Settle(ctx, g.ID, map[string]game.Result{a: game.ResultWin, b: game.ResultLoss})
	assert.ErrorIs(t, err, game.ErrAlreadyCompleted)
	testutil.RequireBalance(t, h.wallet, a, "140")
	testutil.RequireBalance(t, h.wallet, h.houseID, "10")
}

func TestGameCancelRefundsStakes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "50")
	b := h.player(t, "b", "80")

	g := h.newGame(t, a, "default", "50")
	_, err := h.games.Join(ctx, g.ID, a)
	require.NoError(t, err)
	_, err = h.games.Join(ctx, g.ID, b)
	require.NoError(t, err)
	testutil.RequireBalance(t, h.wallet, a, "0")

	detail, err := h.games.Cancel(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusCancelled, detail.Status)
	assert.True(t, detail.TotalPot.IsZero())

	testutil.RequireBalance(t, h.wallet, a, "50")
	testutil.RequireBalance(t, h.wallet, b, "80")

	_, err = h.games.Cancel(ctx, g.ID)
	assert.ErrorIs(t, err, game.ErrGameNotWaiting)
	_, err = h.games.Join(ctx, g.ID, a)
	assert.ErrorIs(t, err, game.ErrGameNotJoinable)
}

func TestGameJoinRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "100")
	b := h.player(t, "b", "100")
	c := h.player(t, "c", "100")
	poor := h.player(t, "poor", "10")

	g := h.newGame(t, a, "duel", "20")
	entry, err := h.games.Join(ctx, g.ID, a)
	require.NoError(t, err)
	assert.False(t, entry.JoinedAt.IsZero())

	_, err = h.games.Join(ctx, g.ID, a)
	assert.ErrorIs(t, err, game.ErrAlreadyJoined)

	_, err = h.games.Join(ctx, g.ID, poor)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	testutil.RequireBalance(t, h.wallet, poor, "10")

	_, err = h.games.Join(ctx, g.ID, b)
	require.NoError(t, err)

	_, err = h.games.Join(ctx, g.ID, c)
	assert.ErrorIs(t, err, game.ErrGameFull)
	testutil.RequireBalance(t, h.wallet, c, "100")

	detail, err := h.games.GetByCode(ctx, g.GameCode)
	require.NoError(t, err)
	assert.Len(t, detail.Entries, 2)
	assert.True(t, decimal.NewFromInt(40).Equal(detail.TotalPot))
}

func TestGameStartRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "100")
	b := h.player(t, "b", "100")

	g := h.newGame(t, a, "default", "10")
	_, err := h.games.Join(ctx, g.ID, a)
	require.NoError(t, err)

	_, err = h.games.Start(ctx, g.ID)
	assert.ErrorIs(t, err, game.ErrNotEnoughPlayers)

	_, err = h.games.Settle(ctx, g.ID, map[string]game.Result{a: game.ResultWin})
	assert.ErrorIs(t, err, game.ErrGameNotInProgress)

	_, err = h.games.Join(ctx, g.ID, b)
	require.NoError(t, err)
	started, err := h.games.Start(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusInProgress, started.Status)
	assert.NotNil(t, started.StartedAt)

	_, err = h.games.Start(ctx, g.ID)
	assert.ErrorIs(t, err, game.ErrGameNotWaiting)
	_, err = h.games.Join(ctx, g.ID, h.player(t, "late", "100"))
	assert.ErrorIs(t, err, game.ErrGameNotJoinable)
	_, err = h.games.Cancel(ctx, g.ID)
	assert.ErrorIs(t, err, game.ErrGameNotWaiting)
}

func TestGameSettleRejectsIncompleteOutcomes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "100")
	b := h.player(t, "b", "100")

	g := h.newGame(t, a, "default", "30")
	for _, u := range []string{a, b} {
		_, err := h.games.Join(ctx, g.ID, u)
		require.NoError(t, err)
	}
	_, err := h.games.Start(ctx, g.ID)
	require.NoError(t, err)

	_, err = h.games.Settle(ctx, g.ID, map[string]game.Result{a: game.ResultWin})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	detail, err := h.games.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusInProgress, detail.Status)
	testutil.RequireBalance(t, h.wallet, h.houseID, "0")
}

func TestGameSettleWithDraws(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "50")
	b := h.player(t, "b", "50")
	c := h.player(t, "c", "50")

	g := h.newGame(t, a, "default", "50")
	for _, u := range []string{a, b, c} {
		_, err := h.games.Join(ctx, g.ID, u)
		require.NoError(t, err)
	}
	_, err := h.games.Start(ctx, g.ID)
	require.NoError(t, err)

	_, err = h.games.Settle(ctx, g.ID, map[string]game.Result{
		a: game.ResultWin,
		b: game.ResultDraw,
		c: game.ResultLoss,
	})
	require.NoError(t, err)

	// draw refund 50 * 0.98; winner (150 - 50) * 0.9
	testutil.RequireBalance(t, h.wallet, a, "90")
	testutil.RequireBalance(t, h.wallet, b, "49")
	testutil.RequireBalance(t, h.wallet, c, "0")
	testutil.RequireBalance(t, h.wallet, h.houseID, "11")
}

func TestGameConcurrentJoinsNoDoubleSpend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "100")

	const games = 6
	ids := make([]string, games)
	for i := range ids {
		ids[i] = h.newGame(t, a, "default", "30").ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, games)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.games.Join(ctx, id, a)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	joined := 0
	for err := range errs {
		if err == nil {
			joined++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	}
	assert.Equal(t, 3, joined)
	testutil.RequireBalance(t, h.wallet, a, "10")
}

func TestGamePotMatchesStakesUnderConcurrentJoins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	creator := h.player(t, "creator", "0")
	g := h.newGame(t, creator, "default", "15")

	const players = 8
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		id := h.player(t, "p", "15")
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.games.Join(ctx, g.ID, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	detail, err := h.games.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Entries, players)
	assert.True(t, decimal.NewFromInt(15*players).Equal(detail.TotalPot), "pot %s", detail.TotalPot)

	stakes, err := game.NewGameRepository().SumStakes(ctx, h.db.DB, g.ID)
	require.NoError(t, err)
	assert.True(t, stakes.Equal(detail.TotalPot))
}

func TestGameConcurrentSettleOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "50")
	b := h.player(t, "b", "50")

	g := h.newGame(t, a, "default", "50")
	for _, u := range []string{a, b} {
		_, err := h.games.Join(ctx, g.ID, u)
		require.NoError(t, err)
	}
	_, err := h.games.Start(ctx, g.ID)
	require.NoError(t, err)

	outcomes := map[string]game.Result{a: game.ResultWin, b: game.ResultLoss}
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.games.Settle(ctx, g.ID, outcomes)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	settled := 0
	for err := range errs {
		if err == nil {
			settled++
			continue
		}
		assert.ErrorIs(t, err, game.ErrAlreadyCompleted)
	}
	assert.Equal(t, 1, settled)
	testutil.RequireBalance(t, h.wallet, a, "90")
	testutil.RequireBalance(t, h.wallet, h.houseID, "10")
}

func TestGameCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "0")

	_, err := h.games.Create(ctx, game.CreateRequest{CreatorID: a, GameType: "default", StakeAmount: decimal.Zero})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = h.games.Create(ctx, game.CreateRequest{CreatorID: a, GameType: "", StakeAmount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = h.games.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, game.ErrGameNotFound)
}

func TestGameMalformedIDsAreNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "50")
	g := h.newGame(t, a, "default", "10")

	_, err := h.games.Get(ctx, "abc")
	assert.ErrorIs(t, err, game.ErrGameNotFound)

	_, err = h.games.Join(ctx, "abc", a)
	assert.ErrorIs(t, err, game.ErrGameNotFound)

	_, err = h.games.Join(ctx, g.ID, "bob")
	assert.ErrorIs(t, err, users.ErrUserNotFound)

	_, err = h.games.Start(ctx, "abc")
	assert.ErrorIs(t, err, game.ErrGameNotFound)

	_, err = h.games.Settle(ctx, "abc", map[string]game.Result{a: game.ResultWin})
	assert.ErrorIs(t, err, game.ErrGameNotFound)

	_, err = h.games.Cancel(ctx, "abc")
	assert.ErrorIs(t, err, game.ErrGameNotFound)

	_, err = h.games.Create(ctx, game.CreateRequest{CreatorID: "bob", GameType: "default", StakeAmount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	testutil.RequireBalance(t, h.wallet, a, "50")
}

func TestGameCreateRejectsUnlistedGameType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.player(t, "a", "0")
	cfg := testutil.TestConfigWith(t, map[string]string{"MIN_PLAYERS_TO_START": "chess:2"})
	games := game.NewService(h.db.Runner(), game.NewGameRepository(), h.wallet, cfg, h.houseID, events.NoopPublisher{})

	_, err := games.Create(ctx, game.CreateRequest{CreatorID: a, GameType: "no-such-game", StakeAmount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	g, err := games.Create(ctx, game.CreateRequest{CreatorID: a, GameType: "chess", StakeAmount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, "chess", g.GameType)
}
