package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/tasks"
)

// TasksHandler serves task completion and progress.
type TasksHandler struct {
	tasks    Tasks
	sessions Sessions
}

// NewTasksHandler creates a tasks handler.
func NewTasksHandler(t Tasks, sessions Sessions) *TasksHandler {
	return &TasksHandler{tasks: t, sessions: sessions}
}

type taskRequest struct {
	PlayerID     string             `json:"player_id"`
	TaskType     model.TaskType     `json:"task_type"`
	Target       int                `json:"target"`
	Delta        int                `json:"delta"`
	RewardPoints int64              `json:"reward_points"`
	Metadata     model.TaskMetadata `json:"metadata"`
}

type taskResponse struct {
	Progress *model.TaskProgress `json:"progress"`
	Credited bool                `json:"credited"`
}

// HandleComplete handles POST /v1/tasks/:taskId/complete.
func (h *TasksHandler) HandleComplete(c *fiber.Ctx) error {
	const op = "api.tasks.complete"
	var req taskRequest
	if err := bind(c, op, &req); err != nil {
		return writeError(c, err)
	}
	if err := required(op, "player_id", req.PlayerID); err != nil {
		return writeError(c, err)
	}
	var res tasks.Result
	err := h.sessions.Exclusive(c.UserContext(), []string{req.PlayerID}, func(ctx context.Context) (err error) {
		res, err = h.tasks.Complete(ctx, tasks.CompleteRequest{
			PlayerID:     req.PlayerID,
			TaskID:       c.Params("taskId"),
			Type:         req.TaskType,
			Target:       req.Target,
			RewardPoints: req.RewardPoints,
			Metadata:     req.Metadata,
		})
		return err
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, "Task completed successfully", taskResponse(res))
}

// HandleProgress handles POST /v1/tasks/:taskId/progress.
func (h *TasksHandler) HandleProgress(c *fiber.Ctx) error {
	const op = "api.tasks.progress"
	var req taskRequest
	if err := bind(c, op, &req); err != nil {
		return writeError(c, err)
	}
	if err := required(op, "player_id", req.PlayerID); err != nil {
		return writeError(c, err)
	}
	if req.Delta == 0 {
		req.Delta = 1
	}
	var res tasks.Result
	err := h.sessions.Exclusive(c.UserContext(), []string{req.PlayerID}, func(ctx context.Context) (err error) {
		res, err = h.tasks.Progress(ctx, tasks.ProgressRequest{
			PlayerID:     req.PlayerID,
			TaskID:       c.Params("taskId"),
			Type:         req.TaskType,
			Target:       req.Target,
			Delta:        req.Delta,
			RewardPoints: req.RewardPoints,
			Metadata:     req.Metadata,
		})
		return err
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, "Task progress updated successfully", taskResponse(res))
}
