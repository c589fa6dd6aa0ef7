package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to OpportunityStatus
		ok       bool
	}{
		// 正向推进
		{StatusDiscovered, StatusEvaluating, true},
		{StatusEvaluating, StatusApproved, true},
		{StatusApproved, StatusBuilding, true},
		{StatusBuilding, StatusDeployed, true},
		// 允许跳过中间状态
		{StatusDiscovered, StatusApproved, true},
		{StatusApproved, StatusDeployed, true},
		// 拒绝只能发生在评估完成前
		{StatusDiscovered, StatusRejected, true},
		{StatusEvaluating, StatusRejected, true},
		{StatusApproved, StatusRejected, false},
		{StatusBuilding, StatusRejected, false},
		// 不允许回退与原地不动
		{StatusApproved, StatusEvaluating, false},
		{StatusDeployed, StatusBuilding, false},
		{StatusBuilding, StatusBuilding, false},
		// 终态不可离开
		{StatusRejected, StatusEvaluating, false},
		{StatusDeployed, StatusEvaluating, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTransitionPersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &Opportunity{Title: "test", Source: "manual"}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	got, err := store.Transition(ctx, opp.ID, StatusEvaluating, "")
	require.NoError(t, err)
	assert.Equal(t, StatusEvaluating, got.Status)
	// 进入 evaluating 即盖时间戳
	assert.NotNil(t, got.EvaluatedAt)

	got, err = store.Transition(ctx, opp.ID, StatusApproved, "模板化实现成本低")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.NotNil(t, got.EvaluatedAt)
	assert.Equal(t, "模板化实现成本低", got.EvaluationNotes)

	reloaded, err := store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, reloaded.Status)
	assert.Equal(t, "模板化实现成本低", reloaded.EvaluationNotes)
}

func TestTransitionStoresRejectionReason(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &Opportunity{Title: "test", Source: "manual"}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	got, err := store.Transition(ctx, opp.ID, StatusRejected, "市场太小")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, "市场太小", got.RejectionReason)
	assert.Empty(t, got.EvaluationNotes)
	assert.NotNil(t, got.EvaluatedAt)
}

func TestTransitionRejectsBackward(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &Opportunity{Title: "test", Source: "manual", Status: StatusApproved}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	_, err := store.Transition(ctx, opp.ID, StatusDiscovered, "")
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusApproved, invalid.From)

	// 失败的迁移不落库
	reloaded, err := store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, reloaded.Status)
}

func TestTransitionMissingOpportunity(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Transition(context.Background(), "opp-none", StatusEvaluating, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
