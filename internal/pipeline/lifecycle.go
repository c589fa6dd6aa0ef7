package pipeline

import (
	"context"
	"fmt"
	"time"
)

// 状态序号：状态只能沿序号递增方向前进，允许跳过中间状态
var statusRank = map[OpportunityStatus]int{
	StatusDiscovered: 0,
	StatusEvaluating: 1,
	StatusApproved:   2,
	StatusBuilding:   3,
	StatusDeployed:   4,
}

// ErrInvalidTransition 非法状态迁移
type ErrInvalidTransition struct {
	From OpportunityStatus
	To   OpportunityStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("机会状态不允许从 %s 迁移到 %s", e.From, e.To)
}

// CanTransition 判断机会状态迁移是否合法。
// rejected 仅可从 discovered 或 evaluating 进入；rejected 与 deployed 为终态。
func CanTransition(from, to OpportunityStatus) bool {
	if from == to {
		return false
	}
	if from == StatusRejected || from == StatusDeployed {
		return false
	}
	if to == StatusRejected {
		return from == StatusDiscovered || from == StatusEvaluating
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Transition 对机会执行状态迁移并持久化，非法迁移返回 *ErrInvalidTransition。
// notes 随迁移落库：迁向 rejected 时写入 RejectionReason，其余写入 EvaluationNotes。
func (s *Store) Transition(ctx context.Context, id string, to OpportunityStatus, notes string) (*Opportunity, error) {
	opp, err := s.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(opp.Status, to) {
		return nil, &ErrInvalidTransition{From: opp.Status, To: to}
	}
	opp.Status = to
	switch to {
	case StatusEvaluating, StatusApproved, StatusRejected:
		now := time.Now().UTC()
		opp.EvaluatedAt = &now
	}
	if notes != "" {
		if to == StatusRejected {
			opp.RejectionReason = notes
		} else {
			opp.EvaluationNotes = notes
		}
	}
	if err := s.SaveOpportunity(ctx, opp); err != nil {
		return nil, err
	}
	return opp, nil
}
