// Package api is the request/response boundary. It exposes players, battles
// and tasks over fiber under /v1, plus health, stats and metrics.
package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/okian/tapbattle/internal/domain/battle"
	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/tasks"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
)

// Players reads and creates player records.
type Players interface {
	EnsurePlayer(ctx context.Context, id, username string) (*model.Player, bool, error)
	Player(ctx context.Context, id string) (*model.Player, error)
	SelectAvatar(ctx context.Context, playerID, avatarID string) (*model.Player, error)
}

// Battles is the battle lifecycle exposed over HTTP.
type Battles interface {
	Get(ctx context.Context, id string) (*model.Battle, error)
	Recent(ctx context.Context, playerID string) ([]model.Battle, error)
	Opponents() []model.NPCOpponent
	StartPve(ctx context.Context, req battle.PveRequest) (*model.Battle, error)
	StartPvp(ctx context.Context, req battle.PvpRequest) (*model.Battle, error)
	SubmitTurn(ctx context.Context, battleID, playerID string, action model.ActionType) (*model.Battle, error)
	SubmitPvpTurn(ctx context.Context, turn battle.PvpTurn) (battle.TurnResult, error)
	AutoResolve(ctx context.Context, battleID, playerID string) (*model.Battle, error)
}

// Tasks is the task completion and referral hook.
type Tasks interface {
	Complete(ctx context.Context, req tasks.CompleteRequest) (tasks.Result, error)
	Progress(ctx context.Context, req tasks.ProgressRequest) (tasks.Result, error)
	ApplyReferral(ctx context.Context, playerID, code string) (*model.Player, error)
}

// Sessions keeps live session caches coherent with writes made here. fn
// runs while the listed players' sessions are flushed and held; they are
// reloaded afterwards. ClearBattle releases a finished battle from the
// players' sessions.
type Sessions interface {
	Exclusive(ctx context.Context, playerIDs []string, fn func(context.Context) error) error
	ClearBattle(battleID string, playerIDs ...string)
}

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// Dependencies bundles what the handlers need.
type Dependencies struct {
	Players  Players
	Battles  Battles
	Tasks    Tasks
	Sessions Sessions
	Store    Pinger
	Stats    StatsProvider
}

// Server wires HTTP routes for the API.
type Server struct {
	health  *HealthHandler
	stats   *StatsHandler
	players *PlayersHandler
	battles *BattlesHandler
	tasks   *TasksHandler
	log     logger.Logger
	origins string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAllowedOrigins sets the CORS allow list, comma separated.
func WithAllowedOrigins(origins string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = noSessions{}
	}
	s := &Server{origins: "*"}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("api")
	}
	s.health = NewHealthHandler(deps.Store)
	s.stats = NewStatsHandler(deps.Stats)
	s.players = NewPlayersHandler(deps.Players, deps.Tasks, sessions, s.log)
	s.battles = NewBattlesHandler(deps.Battles, sessions)
	s.tasks = NewTasksHandler(deps.Tasks, sessions)
	return s
}

// App builds a fiber application with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: s.origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	s.Register(app)
	return app
}

// Register attaches all routes to router.
func (s *Server) Register(router fiber.Router) {
	router.Get("/healthz", MetricsMiddleware("healthz"), s.health.HandleHealth)
	router.Get("/metrics", s.health.HandleMetrics())
	router.Get("/stats", MetricsMiddleware("stats"), s.stats.HandleStats)

	v1 := router.Group("/v1")
	v1.Post("/players", MetricsMiddleware("players_ensure"), s.players.HandleEnsure)
	v1.Get("/players/:playerId", MetricsMiddleware("players_get"), s.players.HandleGet)
	v1.Post("/players/:playerId/avatar", MetricsMiddleware("players_avatar"), s.players.HandleSelectAvatar)

	// Static battle paths before the :battleId routes.
	v1.Get("/battle/opponents", MetricsMiddleware("battle_opponents"), s.battles.HandleOpponents)
	v1.Post("/battle/start", MetricsMiddleware("battle_start"), s.battles.HandleStart)
	v1.Post("/battle/:battleId/turn", MetricsMiddleware("battle_turn"), s.battles.HandleTurn)
	v1.Post("/battle/:battleId/auto-resolve", MetricsMiddleware("battle_auto_resolve"), s.battles.HandleAutoResolve)
	v1.Get("/battle/:battleId", MetricsMiddleware("battle_get"), s.battles.HandleGet)
	v1.Get("/battles/:playerId", MetricsMiddleware("battles_recent"), s.battles.HandleRecent)

	v1.Post("/tasks/:taskId/complete", MetricsMiddleware("tasks_complete"), s.tasks.HandleComplete)
	v1.Post("/tasks/:taskId/progress", MetricsMiddleware("tasks_progress"), s.tasks.HandleProgress)
}

// errorHandler renders errors that escaped a handler, including fiber's own.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Code: codeForStatus(fe.Code), Status: "error", Message: fe.Message})
	}
	s.log.Error(c.UserContext(), "unhandled request error",
		logger.String("path", c.Path()), logger.Error(err))
	return writeError(c, err)
}

type successResponse struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeOK(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(successResponse{
		Code:    fiber.StatusOK,
		Status:  "OK",
		Message: message,
		Data:    data,
	})
}

// writeError maps the error kind to a status and renders the envelope.
func writeError(c *fiber.Ctx, err error) error {
	return c.Status(statusOf(err)).JSON(errorResponse{
		Code:    errs.Code(err),
		Status:  "error",
		Message: errs.Message(err),
	})
}

func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrValidation:
		return fiber.StatusBadRequest
	case errs.ErrNotFound:
		return fiber.StatusNotFound
	case errs.ErrStateConflict:
		return fiber.StatusConflict
	case errs.ErrUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "validation_error"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "internal_error"
	}
}

type noSessions struct{}

func (noSessions) ClearBattle(string, ...string) {}

func (noSessions) Exclusive(ctx context.Context, _ []string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
