package battle_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/combat"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// scripted returns queued floats then 0.99; IntN returns n-1 unless queued.
type scripted struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

func (s *scripted) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.floats) == 0 {
		return 0.99
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scripted) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ints) == 0 {
		return n - 1
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newPlayer(id string, energyLeft int, avatar *model.Avatar) *model.Player {
	p := &model.Player{
		ID:               id,
		Username:         id,
		Energy:           energyLeft,
		MaxEnergy:        100,
		EnergyRegenRate:  1,
		LastEnergyUpdate: base,
		Level:            1,
	}
	if avatar != nil {
		avatar.PlayerID = id
		p.Avatars = []model.Avatar{*avatar}
		p.ActiveAvatarID = avatar.ID
	}
	return p
}

func starter(id string) *model.Avatar {
	return &model.Avatar{ID: id, Power: 10, Defense: 5, Speed: 5, Health: 100, ExperienceNeeded: 100}
}

type fixture struct {
	store  *memStore
	roller *scripted
	mgr    *battle.Manager
	now    time.Time
}

func newFixture() *fixture {
	f := &fixture{store: newMemStore(), roller: &scripted{}, now: base}
	seq := 0
	f.mgr = battle.NewManager(f.store,
		battle.WithResolver(combat.New(combat.WithRoller(f.roller))),
		battle.WithClock(func() time.Time { return f.now }),
		battle.WithIDGenerator(func() string { seq++; return fmt.Sprintf("b-%d", seq) }),
	)
	return f
}

func TestStartPve(t *testing.T) {
	ctx := context.Background()

	Convey("Given a player with a starter avatar and full energy", t, func() {
		f := newFixture()
		f.store.put(newPlayer("alice", 100, starter("av-1")))

		Convey("When starting an easy battle with 10 energy", func() {
			b, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", Difficulty: "easy", EnergyToSpend: 10})

			Convey("Then the goblin is unscaled and energy is debited", func() {
				So(err, ShouldBeNil)
				So(b.Status, ShouldEqual, model.StatusInProgress)
				So(b.Type, ShouldEqual, model.BattlePvE)
				So(b.Opponent.Name, ShouldEqual, "Goblin")
				So(b.OpponentStats, ShouldResemble, model.ParticipantStats{InitialHealth: 50, CurrentHealth: 50, Power: 8, Defense: 3, Speed: 1})
				So(b.UserStats.CurrentHealth, ShouldEqual, 100)
				So(f.store.player("alice").Energy, ShouldEqual, 90)
				stored, err := f.mgr.Get(ctx, b.ID)
				So(err, ShouldBeNil)
				So(stored.EnergySpent, ShouldEqual, 10)
			})
		})

		Convey("When the stake is below the minimum", func() {
			_, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", EnergyToSpend: 9})

			Convey("Then it is a validation error and nothing is written", func() {
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
				So(errors.Is(err, battle.ErrMinimumStake), ShouldBeTrue)
				So(f.store.txCount, ShouldEqual, 0)
			})
		})

		Convey("When a named opponent is requested", func() {
			b, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", OpponentID: "forest-dragon", EnergyToSpend: 20})

			Convey("Then it is scaled by the stake", func() {
				So(err, ShouldBeNil)
				So(b.Opponent.Name, ShouldEqual, "Forest Dragon")
				So(b.OpponentStats.Power, ShouldEqual, 38) // 25 * 1.5 = 37.5
				So(b.OpponentStats.Speed, ShouldEqual, 8)
			})
		})

		Convey("When a second battle is started before the first ends", func() {
			first, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", EnergyToSpend: 10})
			So(err, ShouldBeNil)
			_, err = f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", EnergyToSpend: 10})

			Convey("Then it conflicts and no energy is taken", func() {
				So(errors.Is(err, errs.ErrStateConflict), ShouldBeTrue)
				So(errors.Is(err, battle.ErrAlreadyBattling), ShouldBeTrue)
				So(errs.Message(err), ShouldContainSubstring, first.ID)
				So(f.store.player("alice").Energy, ShouldEqual, 90)
			})

			Convey("Then a new one starts once the first is over", func() {
				f.store.finish(first.ID)
				next, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", EnergyToSpend: 10})
				So(err, ShouldBeNil)
				So(next.ID, ShouldNotEqual, first.ID)
			})
		})

		Convey("When an unknown opponent is requested", func() {
			_, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", OpponentID: "kraken", EnergyToSpend: 10})

			Convey("Then it is not found", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a player short of energy", t, func() {
		f := newFixture()
		f.store.put(newPlayer("bob", 20, starter("av-2")))
		f.now = base.Add(5 * time.Second)

		Convey("When staking 30", func() {
			_, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "bob", EnergyToSpend: 30})

			Convey("Then the shortfall after regeneration is reported", func() {
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
				So(errors.Is(err, battle.ErrInsufficientEnergy), ShouldBeTrue)
				So(errs.Message(err), ShouldContainSubstring, "need 30, have 25")
				So(f.store.player("bob").Energy, ShouldEqual, 20)
			})
		})
	})

	Convey("Given a player without an avatar", t, func() {
		f := newFixture()
		f.store.put(newPlayer("carol", 100, nil))

		Convey("When starting a battle", func() {
			_, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "carol", EnergyToSpend: 10})

			Convey("Then the missing avatar is reported", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, battle.ErrMissingAvatar), ShouldBeTrue)
			})
		})

		Convey("When the player does not exist", func() {
			_, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "nobody", EnergyToSpend: 10})

			Convey("Then it is not found", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the store is down", func() {
			f.store.down = true
			_, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "carol", EnergyToSpend: 10})

			Convey("Then it is unavailable", func() {
				So(errors.Is(err, errs.ErrUnavailable), ShouldBeTrue)
			})
		})
	})
}

func TestPveTurnsAndAutoResolve(t *testing.T) {
	ctx := context.Background()

	Convey("Given an easy PvE battle with no critical hits", t, func() {
		f := newFixture()
		f.store.put(newPlayer("alice", 100, starter("av-1")))
		b, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", Difficulty: "easy", EnergyToSpend: 10})
		So(err, ShouldBeNil)

		Convey("When the user attacks and the goblin attacks", func() {
			f.roller.floats = []float64{0.1} // goblin picks attack
			got, err := f.mgr.SubmitTurn(ctx, b.ID, "alice", model.ActionAttack)

			Convey("Then one round is appended and persisted", func() {
				So(err, ShouldBeNil)
				So(len(got.Rounds), ShouldEqual, 1)
				So(got.Rounds[0].Number, ShouldEqual, 1)
				So(got.Rounds[0].OpponentAction.Type, ShouldEqual, model.ActionAttack)
				So(got.UserStats.CurrentHealth, ShouldEqual, 94)
				So(got.OpponentStats.CurrentHealth, ShouldEqual, 41)
				stored, _ := f.mgr.Get(ctx, b.ID)
				So(stored.Rounds, ShouldResemble, got.Rounds)
			})

			Convey("Then a later round leaves the first untouched", func() {
				f.roller.floats = []float64{0.75} // goblin defends
				next, err := f.mgr.SubmitTurn(ctx, b.ID, "", model.ActionAttack)
				So(err, ShouldBeNil)
				So(len(next.Rounds), ShouldEqual, 2)
				So(next.Rounds[0], ShouldResemble, got.Rounds[0])
				So(next.Rounds[1].OpponentAction.Type, ShouldEqual, model.ActionDefend)
			})
		})

		Convey("When the action is unknown", func() {
			_, err := f.mgr.SubmitTurn(ctx, b.ID, "alice", model.ActionType("dance"))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When someone else submits", func() {
			_, err := f.mgr.SubmitTurn(ctx, b.ID, "mallory", model.ActionAttack)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, battle.ErrNotParticipant), ShouldBeTrue)
			})
		})

		Convey("When auto-resolving", func() {
			done, err := f.mgr.AutoResolve(ctx, b.ID, "alice")

			Convey("Then the goblin falls in six rounds and rewards are applied", func() {
				So(err, ShouldBeNil)
				So(done.Status, ShouldEqual, model.StatusCompleted)
				So(done.Result, ShouldEqual, model.ResultVictory)
				So(len(done.Rounds), ShouldEqual, 6)
				So(done.OpponentStats.CurrentHealth, ShouldEqual, 0)
				So(done.UserStats.CurrentHealth, ShouldEqual, 64)
				So(done.CoinsEarned, ShouldBeBetweenOrEqual, 10, 20)
				So(done.ExperienceEarned, ShouldEqual, 15)
				So(done.CompletedAt, ShouldNotBeNil)

				p := f.store.player("alice")
				So(p.Coins, ShouldEqual, done.CoinsEarned)
				So(p.Avatars[0].Experience, ShouldEqual, 15)
			})

			Convey("Then completing again does not pay twice", func() {
				again, err := f.mgr.Complete(ctx, b.ID)
				So(err, ShouldBeNil)
				So(again.CompletedAt, ShouldResemble, done.CompletedAt)
				So(f.store.player("alice").Coins, ShouldEqual, done.CoinsEarned)
			})

			Convey("Then further turns conflict", func() {
				_, err := f.mgr.SubmitTurn(ctx, b.ID, "alice", model.ActionAttack)
				So(errors.Is(err, errs.ErrStateConflict), ShouldBeTrue)
				_, err = f.mgr.AutoResolve(ctx, b.ID, "")
				So(errors.Is(err, errs.ErrStateConflict), ShouldBeTrue)
			})
		})
	})

	Convey("Given a battle the user loses", t, func() {
		f := newFixture()
		weak := &model.Avatar{ID: "av-w", Power: 1, Defense: 0, Speed: 0, Health: 10, ExperienceNeeded: 100}
		f.store.put(newPlayer("dave", 100, weak))
		b, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "dave", Difficulty: "hard", EnergyToSpend: 10})
		So(err, ShouldBeNil)

		Convey("When auto-resolving", func() {
			done, err := f.mgr.AutoResolve(ctx, b.ID, "")

			Convey("Then the defeat still pays the consolation factor", func() {
				So(err, ShouldBeNil)
				So(done.Result, ShouldEqual, model.ResultDefeat)
				So(done.CoinsEarned, ShouldEqual, 12) // floor(60 * 0.2)
				So(done.ExperienceEarned, ShouldEqual, 8)
			})
		})
	})
}

func pvpFixture(alice, bob *model.Avatar) (*fixture, *model.Battle) {
	f := newFixture()
	f.store.put(newPlayer("alice", 100, alice))
	f.store.put(newPlayer("bob", 100, bob))
	b, err := f.mgr.StartPvp(context.Background(), battle.PvpRequest{PlayerA: "alice", PlayerB: "bob", EnergyToSpend: 15})
	So(err, ShouldBeNil)
	return f, b
}

func TestPvp(t *testing.T) {
	ctx := context.Background()
	bobAvatar := func() *model.Avatar {
		return &model.Avatar{ID: "av-b", Power: 12, Defense: 3, Speed: 4, Health: 100, ExperienceNeeded: 100}
	}

	Convey("Given a PvP battle between alice and bob", t, func() {
		f, b := pvpFixture(starter("av-a"), bobAvatar())

		Convey("Then both stakes are debited and stats come from each avatar", func() {
			So(f.store.player("alice").Energy, ShouldEqual, 85)
			So(f.store.player("bob").Energy, ShouldEqual, 85)
			So(b.UserStats.Power, ShouldEqual, 10)
			So(b.OpponentStats.Power, ShouldEqual, 12)
			So(b.OpponentID, ShouldEqual, "bob")
		})

		Convey("When bob's message is processed first but alice was received first", func() {
			r1, err := f.mgr.SubmitPvpTurn(ctx, battle.PvpTurn{BattleID: b.ID, PlayerID: "bob", Action: model.ActionAttack, ReceivedAt: base.Add(5 * time.Millisecond)})
			So(err, ShouldBeNil)
			r2, err := f.mgr.SubmitPvpTurn(ctx, battle.PvpTurn{BattleID: b.ID, PlayerID: "alice", Action: model.ActionAttack, ReceivedAt: base.Add(time.Millisecond)})
			So(err, ShouldBeNil)

			Convey("Then bob waits and alice attacks first", func() {
				So(r1.Waiting, ShouldBeTrue)
				So(len(r1.Battle.Rounds), ShouldEqual, 0)
				So(r2.Waiting, ShouldBeFalse)
				So(len(r2.Battle.Rounds), ShouldEqual, 1)
				So(r2.Battle.Rounds[0].FirstAttacker, ShouldEqual, model.SideUser)
				So(r2.Battle.OpponentStats.CurrentHealth, ShouldEqual, 88)
				So(r2.Battle.UserStats.CurrentHealth, ShouldEqual, 90)
				So(f.mgr.PendingRounds(), ShouldEqual, 0)
			})
		})

		Convey("When alice's message is processed first but bob was received first", func() {
			_, _ = f.mgr.SubmitPvpTurn(ctx, battle.PvpTurn{BattleID: b.ID, PlayerID: "alice", Action: model.ActionAttack, ReceivedAt: base.Add(9 * time.Millisecond)})
			r, err := f.mgr.SubmitPvpTurn(ctx, battle.PvpTurn{BattleID: b.ID, PlayerID: "bob", Action: model.ActionSpecial, ReceivedAt: base.Add(2 * time.Millisecond)})

			Convey("Then bob attacks first", func() {
				So(err, ShouldBeNil)
				So(r.Battle.Rounds[0].FirstAttacker, ShouldEqual, model.SideOpponent)
				So(r.Battle.Rounds[0].OpponentAction.Type, ShouldEqual, model.ActionSpecial)
				So(r.Battle.UserStats.CurrentHealth, ShouldEqual, 89)
			})
		})

		Convey("When alice resubmits before bob answers", func() {
			_, _ = f.mgr.SubmitPvpTurn(ctx, battle.PvpTurn{BattleID: b.ID, PlayerID: "alice", Action: model.ActionAttack, ReceivedAt: base.Add(time.Millisecond)})
			again, _ := f.mgr.SubmitPvpTurn(ctx, battle.PvpTurn{BattleID: b.ID, PlayerID: "alice", Action: model.ActionDefend, ReceivedAt: base.Add(10 * time.Millisecond)})
			r, err := f.mgr.SubmitPvpTurn(ctx, battle.PvpTurn{BattleID: b.ID, PlayerID: "bob", Action: model.ActionAttack, ReceivedAt: base.Add(5 * time.Millisecond)})

			Convey("Then the action is replaced but the first receipt time is kept", func() {
				So(err, ShouldBeNil)
				So(again.Waiting, ShouldBeTrue)
				So(r.Battle.Rounds[0].UserAction.Type, ShouldEqual, model.ActionDefend)
				So(r.Battle.Rounds[0].FirstAttacker, ShouldEqual, model.SideUser)
			})
		})

		Convey("When a stranger submits", func() {
			_, err := f.mgr.SubmitPvpTurn(ctx, battle.PvpTurn{BattleID: b.ID, PlayerID: "eve", Action: model.ActionAttack})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When a PvE turn is sent to the PvP battle", func() {
			_, err := f.mgr.SubmitTurn(ctx, b.ID, "alice", model.ActionAttack)

			Convey("Then the battle type conflicts", func() {
				So(errors.Is(err, battle.ErrWrongBattleType), ShouldBeTrue)
			})
		})

		Convey("When auto-resolving", func() {
			done, err := f.mgr.AutoResolve(ctx, b.ID, "bob")

			Convey("Then the faster alice wins and both sides are paid", func() {
				So(err, ShouldBeNil)
				So(done.Result, ShouldEqual, model.ResultVictory)
				So(len(done.Rounds), ShouldEqual, 9)
				So(done.CoinsEarned, ShouldEqual, 75)
				So(done.ExperienceEarned, ShouldEqual, 30)
				So(done.OpponentCoinsEarned, ShouldEqual, 15)
				So(done.OpponentExperienceEarned, ShouldEqual, 6)
				So(f.store.player("alice").Coins, ShouldEqual, 75)
				So(f.store.player("bob").Coins, ShouldEqual, 15)
				So(f.store.player("bob").Avatars[0].Experience, ShouldEqual, 6)
			})

			Convey("Then bob's view is mirrored", func() {
				view := battle.ViewFor(done, "bob")
				So(view.UserStats, ShouldResemble, done.OpponentStats)
				So(view.OpponentStats, ShouldResemble, done.UserStats)
				So(view.Result, ShouldEqual, model.ResultDefeat)
				So(view.CoinsEarned, ShouldEqual, 15)
				So(view.Rounds[0].FirstAttacker, ShouldEqual, model.SideOpponent)
				So(view.Rounds[0].Result, ShouldEqual, done.Rounds[0].MirrorResult)
				So(done.Rounds[0].FirstAttacker, ShouldEqual, model.SideUser)
				So(battle.ViewFor(done, "alice"), ShouldEqual, done)
			})
		})

		Convey("When bob cancels", func() {
			c, err := f.mgr.Cancel(ctx, b.ID, "bob")

			Convey("Then the battle is abandoned without rewards", func() {
				So(err, ShouldBeNil)
				So(c.Status, ShouldEqual, model.StatusCanceled)
				So(c.Result, ShouldEqual, model.ResultAbandoned)
				So(f.store.player("alice").Coins, ShouldEqual, 0)
				_, err = f.mgr.Cancel(ctx, b.ID, "alice")
				So(errors.Is(err, errs.ErrStateConflict), ShouldBeTrue)
			})
		})
	})

	Convey("Given a player matched against themselves", t, func() {
		f := newFixture()
		f.store.put(newPlayer("alice", 100, starter("av-a")))
		_, err := f.mgr.StartPvp(ctx, battle.PvpRequest{PlayerA: "alice", PlayerB: "alice", EnergyToSpend: 10})

		So(errors.Is(err, battle.ErrSelfMatch), ShouldBeTrue)
	})

	Convey("Given one side already in a PvE battle", t, func() {
		f := newFixture()
		f.store.put(newPlayer("alice", 100, starter("av-a")))
		f.store.put(newPlayer("bob", 100, bobAvatar()))
		_, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "bob", EnergyToSpend: 10})
		So(err, ShouldBeNil)
		_, err = f.mgr.StartPvp(ctx, battle.PvpRequest{PlayerA: "alice", PlayerB: "bob", EnergyToSpend: 10})

		Convey("Then the match conflicts and neither side is debited", func() {
			So(errors.Is(err, errs.ErrStateConflict), ShouldBeTrue)
			So(errors.Is(err, battle.ErrAlreadyBattling), ShouldBeTrue)
			So(f.store.player("alice").Energy, ShouldEqual, 100)
			So(f.store.player("bob").Energy, ShouldEqual, 90)
		})
	})

	Convey("Given one side short of energy", t, func() {
		f := newFixture()
		f.store.put(newPlayer("alice", 100, starter("av-a")))
		f.store.put(newPlayer("bob", 5, bobAvatar()))
		_, err := f.mgr.StartPvp(ctx, battle.PvpRequest{PlayerA: "alice", PlayerB: "bob", EnergyToSpend: 10})

		Convey("Then neither side is debited", func() {
			So(errors.Is(err, battle.ErrInsufficientEnergy), ShouldBeTrue)
			So(f.store.player("alice").Energy, ShouldEqual, 100)
		})
	})
}

func TestForceEndAndDraw(t *testing.T) {
	Convey("Given health left after the round limit", t, func() {
		b := &model.Battle{UserStats: model.ParticipantStats{CurrentHealth: 30}, OpponentStats: model.ParticipantStats{CurrentHealth: 30}}

		Convey("When both sides have equal health", func() {
			battle.ForceEnd(b)

			Convey("Then both are zeroed", func() {
				So(b.UserStats.CurrentHealth, ShouldEqual, 0)
				So(b.OpponentStats.CurrentHealth, ShouldEqual, 0)
			})
		})

		Convey("When the opponent is ahead", func() {
			b.OpponentStats.CurrentHealth = 31
			battle.ForceEnd(b)

			Convey("Then only the user is zeroed", func() {
				So(b.UserStats.CurrentHealth, ShouldEqual, 0)
				So(b.OpponentStats.CurrentHealth, ShouldEqual, 31)
			})
		})
	})

	Convey("Given two mirror-image fighters with huge health", t, func() {
		tank := func(id string) *model.Avatar {
			return &model.Avatar{ID: id, Power: 10, Defense: 5, Speed: 5, Health: 1000, ExperienceNeeded: 100}
		}
		f, b := pvpFixture(tank("av-a"), tank("av-b"))
		done, err := f.mgr.AutoResolve(context.Background(), b.ID, "")

		Convey("Then the round limit forces an end in favour of the healthier side", func() {
			So(err, ShouldBeNil)
			So(len(done.Rounds), ShouldEqual, battle.MaxAutoRounds)
			// Ties on speed go to the initiator, who deals 9 against 8.
			So(done.Result, ShouldEqual, model.ResultVictory)
			So(done.UserStats.CurrentHealth, ShouldEqual, 920)
		})
	})
}

func TestRecent(t *testing.T) {
	ctx := context.Background()

	Convey("Given a player with twelve battles", t, func() {
		f := newFixture()
		f.store.put(newPlayer("alice", 100, starter("av-1")))
		for i := 0; i < 12; i++ {
			f.now = base.Add(time.Duration(i) * time.Minute)
			p := f.store.player("alice")
			p.Energy = 100
			f.store.put(p)
			b, err := f.mgr.StartPve(ctx, battle.PveRequest{PlayerID: "alice", EnergyToSpend: 10})
			So(err, ShouldBeNil)
			f.store.finish(b.ID)
		}

		Convey("When listing recent battles", func() {
			list, err := f.mgr.Recent(ctx, "alice")

			Convey("Then the ten newest are returned newest first", func() {
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 10)
				So(list[0].ID, ShouldEqual, "b-12")
				So(list[9].ID, ShouldEqual, "b-3")
			})
		})

		Convey("When listing for an unknown player", func() {
			_, err := f.mgr.Recent(ctx, "ghost")

			Convey("Then it is not found", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("Then the roster is exposed", func() {
			So(len(f.mgr.Opponents()), ShouldEqual, 5)
		})
	})
}
