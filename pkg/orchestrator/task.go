package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/vcp/pkg/types"
)

// defaultMaxRetries matches spec.md §4.4's failure semantics default.
const defaultMaxRetries = 3

// newTask inserts a running Task row tracking one async orchestration
// step. The task id is not sent to the agent: registry.Dispatch gives
// each call a fresh frame id, so the agent cannot recognise a repeat of
// the same task.
func (s *Service) newTask(taskType, targetType, targetID, nodeID, createdBy string, payload any) (*types.Task, error) {
	now := time.Now()
	task := &types.Task{
		ID:         uuid.NewString(),
		TaskType:   taskType,
		Status:     types.TaskStatusRunning,
		TargetType: targetType,
		TargetID:   targetID,
		NodeID:     nodeID,
		Payload:    marshalOrNil(payload),
		MaxRetries: defaultMaxRetries,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.manager.CreateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// completeTask marks task completed with result, matching the Task rows
// left behind by a successful agent response.
func (s *Service) completeTask(task *types.Task, result any) {
	now := time.Now()
	task.Status = types.TaskStatusCompleted
	task.Progress = 100
	task.Result = marshalOrNil(result)
	task.FinishedAt = &now
	task.UpdatedAt = now
	if err := s.manager.UpdateTask(task); err != nil {
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to mark task completed")
	}
}

// failTask marks task failed with err's message. A failed task never
// auto-transitions its target entity; callers decide whether the
// failure was transport-level (entity stays in its intent state for
// reconciliation) or driver-level (entity moves to error immediately).
func (s *Service) failTask(task *types.Task, err error) {
	now := time.Now()
	task.Status = types.TaskStatusFailed
	task.Error = err.Error()
	task.FinishedAt = &now
	task.UpdatedAt = now
	if uerr := s.manager.UpdateTask(task); uerr != nil {
		s.logger.Error().Err(uerr).Str("task_id", task.ID).Msg("failed to mark task failed")
	}
}
