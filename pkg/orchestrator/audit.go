package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/vcp/pkg/types"
)

// audit appends one AuditLog row. The orchestration operations call it on
// validation and precondition failures, agent-call failures and success.
// Lookup misses (not found), task-row and some store-write errors, and the
// node registration hooks return without an audit row.
func (s *Service) audit(userID, action, targetType, targetID, details string, success bool) {
	entry := &types.AuditLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		Success:    success,
		CreatedAt:  time.Now(),
	}
	if err := s.manager.AppendAuditLog(entry); err != nil {
		s.logger.Error().Err(err).Str("action", action).Str("target_id", targetID).Msg("failed to append audit log")
	}
}
