package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/okian/tapbattle/internal/adapters/http/api"
	"github.com/okian/tapbattle/internal/adapters/repository"
	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/combat"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/tasks"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var dbSeq atomic.Int64

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

type mockStats struct{}

func (mockStats) GetStats() map[string]any {
	return map[string]any{"active_sessions": 3}
}

// recordingSessions records which players each mutation held.
type recordingSessions struct {
	calls     [][]string
	cleared   []string
	reloadErr error
}

func (r *recordingSessions) ClearBattle(battleID string, playerIDs ...string) {
	for _, id := range playerIDs {
		r.cleared = append(r.cleared, battleID+":"+id)
	}
}

func (r *recordingSessions) Exclusive(ctx context.Context, ids []string, fn func(context.Context) error) error {
	r.calls = append(r.calls, ids)
	if fn == nil {
		return r.reloadErr
	}
	return fn(ctx)
}

type envelope struct {
	Code    any             `json:"code"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	app      *fiber.App
	store    *repository.GormStore
	ping     *mockPinger
	sessions *recordingSessions
}

// warnLog keeps warning messages and drops everything else.
type warnLog struct {
	warns []string
}

func (w *warnLog) Info(context.Context, string, ...logger.Field)  {}
func (w *warnLog) Error(context.Context, string, ...logger.Field) {}
func (w *warnLog) Debug(context.Context, string, ...logger.Field) {}
func (w *warnLog) Fatal(context.Context, string, ...logger.Field) {}
func (w *warnLog) Named(string) logger.Logger                     { return w }
func (w *warnLog) Warn(_ context.Context, msg string, _ ...logger.Field) {
	w.warns = append(w.warns, msg)
}

func newHarness(ctx context.Context, opts ...api.Option) *harness {
	dsn := fmt.Sprintf("file:api%d?mode=memory&cache=shared", dbSeq.Add(1))
	store, err := repository.Open(ctx, "sqlite", dsn)
	So(err, ShouldBeNil)
	So(store.Migrate(ctx), ShouldBeNil)

	h := &harness{store: store, ping: &mockPinger{}, sessions: &recordingSessions{}}
	srv := api.NewServer(api.Dependencies{
		Players:  store,
		Battles:  battle.NewManager(store, battle.WithResolver(combat.New(combat.WithRoller(combat.NewSeededRoller(7))))),
		Tasks:    tasks.NewService(store, tasks.WithReferralBonus(100)),
		Sessions: h.sessions,
		Store:    h.ping,
		Stats:    mockStats{},
	}, opts...)
	h.app = srv.App()
	return h
}

func (h *harness) do(method, path string, body any) (int, envelope) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		So(err, ShouldBeNil)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.app.Test(req, -1)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)
	var env envelope
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env
}

func (h *harness) ensure(id string) model.Player {
	status, env := h.do(http.MethodPost, "/v1/players", map[string]string{"player_id": id, "username": id})
	So(status, ShouldEqual, http.StatusOK)
	var out struct {
		Player model.Player `json:"player"`
	}
	So(json.Unmarshal(env.Data, &out), ShouldBeNil)
	return out.Player
}

func decode[T any](env envelope) T {
	var v T
	So(json.Unmarshal(env.Data, &v), ShouldBeNil)
	return v
}

func TestHealthAndStats(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running API", t, func() {
		h := newHarness(ctx)
		defer h.store.Close()

		Convey("When the store answers pings", func() {
			status, _ := h.do(http.MethodGet, "/healthz", nil)

			Convey("Then health is OK", func() {
				So(status, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the store is unreachable", func() {
			h.ping.err = errors.New("connection refused")
			status, _ := h.do(http.MethodGet, "/healthz", nil)

			Convey("Then health reports 503", func() {
				So(status, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When stats are requested", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			resp, err := h.app.Test(req, -1)
			So(err, ShouldBeNil)
			var stats map[string]any
			So(json.NewDecoder(resp.Body).Decode(&stats), ShouldBeNil)

			Convey("Then the provider output is returned", func() {
				So(stats["active_sessions"], ShouldEqual, float64(3))
			})
		})

		Convey("When metrics are scraped", func() {
			h.do(http.MethodGet, "/healthz", nil)
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			resp, err := h.app.Test(req, -1)
			So(err, ShouldBeNil)
			raw, _ := io.ReadAll(resp.Body)

			Convey("Then HTTP request series are exposed", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(string(raw), ShouldContainSubstring, "http_requests_total")
			})
		})
	})
}

func TestPlayers(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running API", t, func() {
		h := newHarness(ctx)
		defer h.store.Close()

		Convey("When a player is ensured", func() {
			status, env := h.do(http.MethodPost, "/v1/players", map[string]string{"player_id": "alice", "username": "Alice"})

			Convey("Then it is created with the success envelope", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(env.Status, ShouldEqual, "OK")
				So(env.Code, ShouldEqual, float64(fiber.StatusOK))
				So(env.Message, ShouldEqual, "Player created successfully")
				out := decode[struct {
					Player  model.Player `json:"player"`
					Created bool         `json:"created"`
				}](env)
				So(out.Created, ShouldBeTrue)
				So(out.Player.Energy, ShouldEqual, model.DefaultMaxEnergy)
			})
		})

		Convey("When the player id is missing", func() {
			status, env := h.do(http.MethodPost, "/v1/players", map[string]string{"username": "nobody"})

			Convey("Then validation fails", func() {
				So(status, ShouldEqual, http.StatusBadRequest)
				So(env.Code, ShouldEqual, errs.Code(errs.ErrValidation))
				So(env.Message, ShouldEqual, "player_id is required")
			})
		})

		Convey("When a new player brings a referral code", func() {
			ref := h.ensure("bob")
			status, env := h.do(http.MethodPost, "/v1/players", map[string]string{"player_id": "carol", "referral_code": ref.ReferralCode})

			Convey("Then the referrer is paid and both sessions are refreshed", func() {
				So(status, ShouldEqual, http.StatusOK)
				out := decode[struct {
					Player     model.Player `json:"player"`
					ReferrerID string       `json:"referrer_id"`
				}](env)
				So(out.ReferrerID, ShouldEqual, "bob")
				So(out.Player.ReferredBy, ShouldEqual, "bob")
				bob, err := h.store.Player(ctx, "bob")
				So(err, ShouldBeNil)
				So(bob.Coins, ShouldEqual, 100)
				So(h.sessions.calls[len(h.sessions.calls)-1], ShouldResemble, []string{"bob"})
			})
		})

		Convey("When the referrer's session cannot be reloaded", func() {
			log := &warnLog{}
			h := newHarness(ctx, api.WithLogger(log))
			defer h.store.Close()
			h.sessions.reloadErr = errs.NewKind("session.reload", errs.ErrUnavailable)
			ref := h.ensure("bob")
			status, _ := h.do(http.MethodPost, "/v1/players", map[string]string{"player_id": "carol", "referral_code": ref.ReferralCode})

			Convey("Then the request succeeds and the failure is logged", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(log.warns, ShouldResemble, []string{"referrer session reload failed"})
			})
		})

		Convey("When referrals are not served", func() {
			app := api.NewServer(api.Dependencies{Players: h.store, Store: h.ping, Stats: mockStats{}}).App()
			bare := &harness{app: app, store: h.store, ping: h.ping, sessions: h.sessions}
			status, env := bare.do(http.MethodPost, "/v1/players", map[string]string{"player_id": "erin", "referral_code": "ABC"})

			Convey("Then the code is rejected before the player is created", func() {
				So(status, ShouldEqual, http.StatusServiceUnavailable)
				So(env.Code, ShouldEqual, errs.Code(errs.ErrUnavailable))
				_, err := h.store.Player(ctx, "erin")
				So(errs.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an unknown player is fetched", func() {
			status, env := h.do(http.MethodGet, "/v1/players/ghost", nil)

			Convey("Then 404 is returned", func() {
				So(status, ShouldEqual, http.StatusNotFound)
				So(env.Code, ShouldEqual, errs.Code(errs.ErrNotFound))
			})
		})

		Convey("When a player selects an avatar they do not own", func() {
			h.ensure("dave")
			status, _ := h.do(http.MethodPost, "/v1/players/dave/avatar", map[string]string{"avatar_id": "nope"})

			Convey("Then validation fails", func() {
				So(status, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestBattles(t *testing.T) {
	ctx := context.Background()

	Convey("Given an existing player", t, func() {
		h := newHarness(ctx)
		defer h.store.Close()
		h.ensure("alice")

		Convey("When opponents are listed", func() {
			status, env := h.do(http.MethodGet, "/v1/battle/opponents", nil)

			Convey("Then the static route wins over the battle id route", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(decode[[]model.NPCOpponent](env), ShouldNotBeEmpty)
			})
		})

		Convey("When a PvE battle is started and auto-resolved", func() {
			status, env := h.do(http.MethodPost, "/v1/battle/start", map[string]any{
				"player_id": "alice", "battle_type": "pve", "difficulty": "easy", "energy_to_spend": 10,
			})
			So(status, ShouldEqual, http.StatusOK)
			started := decode[model.Battle](env)
			status, env = h.do(http.MethodPost, "/v1/battle/"+started.ID+"/auto-resolve", nil)

			Convey("Then the battle completes and shows up in history", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(env.Message, ShouldEqual, "Battle auto-resolved successfully")
				So(decode[model.Battle](env).Status, ShouldEqual, model.StatusCompleted)
				So(h.sessions.calls[len(h.sessions.calls)-1], ShouldResemble, []string{"alice"})
				So(h.sessions.cleared, ShouldResemble, []string{started.ID + ":alice"})

				_, env = h.do(http.MethodGet, "/v1/battles/alice", nil)
				So(env.Message, ShouldEqual, "User battles fetched successfully")
				So(decode[[]model.Battle](env), ShouldHaveLength, 1)
			})
		})

		Convey("When a turn is submitted", func() {
			_, env := h.do(http.MethodPost, "/v1/battle/start", map[string]any{
				"player_id": "alice", "energy_to_spend": 10,
			})
			started := decode[model.Battle](env)
			status, env := h.do(http.MethodPost, "/v1/battle/"+started.ID+"/turn", map[string]string{"action": "attack"})

			Convey("Then one round is recorded", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(decode[model.Battle](env).Rounds, ShouldHaveLength, 1)
			})
		})

		Convey("When the stake is below the minimum", func() {
			status, env := h.do(http.MethodPost, "/v1/battle/start", map[string]any{
				"player_id": "alice", "energy_to_spend": 5,
			})

			Convey("Then validation fails with the minimum stake message", func() {
				So(status, ShouldEqual, http.StatusBadRequest)
				So(env.Message, ShouldContainSubstring, "minimum energy required for battle is 10")
			})
		})

		Convey("When a PvP battle is started directly", func() {
			h.ensure("bob")
			status, env := h.do(http.MethodPost, "/v1/battle/start", map[string]any{
				"player_id": "alice", "battle_type": "pvp", "opponent_id": "bob", "energy_to_spend": 10,
			})
			So(status, ShouldEqual, http.StatusOK)
			started := decode[model.Battle](env)
			status, _ = h.do(http.MethodPost, "/v1/battle/"+started.ID+"/turn", map[string]string{"player_id": "alice", "action": "attack"})

			Convey("Then a lone submission waits for the opponent", func() {
				So(status, ShouldEqual, http.StatusAccepted)
				status, env = h.do(http.MethodPost, "/v1/battle/"+started.ID+"/turn", map[string]string{"player_id": "bob", "action": "defend"})
				So(status, ShouldEqual, http.StatusOK)
				view := decode[model.Battle](env)
				So(view.PlayerID, ShouldEqual, "bob")
				So(view.Rounds, ShouldHaveLength, 1)
				So(view.Rounds[0].UserAction.Type, ShouldEqual, model.ActionDefend)
			})
		})

		Convey("When an unknown battle is fetched", func() {
			status, _ := h.do(http.MethodGet, "/v1/battle/missing", nil)

			Convey("Then 404 is returned", func() {
				So(status, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the body is not JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/battle/start", bytes.NewBufferString("{"))
			req.Header.Set("Content-Type", "application/json")
			resp, err := h.app.Test(req, -1)

			Convey("Then 400 is returned", func() {
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestTasks(t *testing.T) {
	ctx := context.Background()

	Convey("Given an existing player", t, func() {
		h := newHarness(ctx)
		defer h.store.Close()
		h.ensure("alice")
		body := map[string]any{"player_id": "alice", "task_type": "community", "reward_points": 50}

		Convey("When a task is completed twice", func() {
			_, first := h.do(http.MethodPost, "/v1/tasks/follow/complete", body)
			status, second := h.do(http.MethodPost, "/v1/tasks/follow/complete", body)

			Convey("Then the reward is credited once", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(decode[struct {
					Credited bool `json:"credited"`
				}](first).Credited, ShouldBeTrue)
				So(decode[struct {
					Credited bool `json:"credited"`
				}](second).Credited, ShouldBeFalse)
				p, err := h.store.Player(ctx, "alice")
				So(err, ShouldBeNil)
				So(p.Coins, ShouldEqual, 50)
			})
		})

		Convey("When progress reaches the target", func() {
			body["target"] = 2
			_, _ = h.do(http.MethodPost, "/v1/tasks/watch/progress", body)
			status, env := h.do(http.MethodPost, "/v1/tasks/watch/progress", body)

			Convey("Then the task completes", func() {
				So(status, ShouldEqual, http.StatusOK)
				out := decode[struct {
					Progress model.TaskProgress `json:"progress"`
					Credited bool               `json:"credited"`
				}](env)
				So(out.Progress.Completed, ShouldBeTrue)
				So(out.Credited, ShouldBeTrue)
			})
		})
	})
}
