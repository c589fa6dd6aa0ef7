package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"backend/internal/director"
	"backend/internal/hunter"
	"backend/internal/monitor"
	"backend/internal/worker/tasks"
)

type mockHunt struct {
	result *hunter.HuntResult
	err    error
	calls  int
}

func (m *mockHunt) RunScheduledHunt(_ context.Context) (*hunter.HuntResult, error) {
	m.calls++
	return m.result, m.err
}

type mockMonitor struct {
	summary *monitor.MonitoringSummary
	err     error
}

func (m *mockMonitor) RunMonitoringCycle(_ context.Context) (*monitor.MonitoringSummary, error) {
	return m.summary, m.err
}

type mockEvaluate struct {
	result *director.BatchResult
	err    error
}

func (m *mockEvaluate) EvaluatePending(_ context.Context) (*director.BatchResult, error) {
	return m.result, m.err
}

func newTask(t *testing.T, taskType string, payload interface{}) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(taskType, data)
}

func TestHandleScheduledHunt(t *testing.T) {
	hunt := &mockHunt{result: &hunter.HuntResult{OpportunitiesFound: 2}}
	h := NewPipelineHandler(hunt, nil, nil, zap.NewNop())

	task := newTask(t, tasks.TypeScheduledHunt, tasks.ScheduledHuntPayload{TriggeredBy: "scheduler"})
	require.NoError(t, h.HandleScheduledHunt(context.Background(), task))
	assert.Equal(t, 1, hunt.calls)
}

func TestHandleScheduledHuntError(t *testing.T) {
	hunt := &mockHunt{err: errors.New("redis 不可达")}
	h := NewPipelineHandler(hunt, nil, nil, zap.NewNop())

	task := newTask(t, tasks.TypeScheduledHunt, tasks.ScheduledHuntPayload{})
	assert.Error(t, h.HandleScheduledHunt(context.Background(), task))
}

func TestHandleScheduledHuntBadPayload(t *testing.T) {
	hunt := &mockHunt{result: &hunter.HuntResult{}}
	h := NewPipelineHandler(hunt, nil, nil, zap.NewNop())

	task := asynq.NewTask(tasks.TypeScheduledHunt, []byte("not json"))
	assert.Error(t, h.HandleScheduledHunt(context.Background(), task))
	assert.Zero(t, hunt.calls)
}

func TestHandleMonitoringCycle(t *testing.T) {
	m := &mockMonitor{summary: &monitor.MonitoringSummary{Total: 3, Down: 1}}
	h := NewPipelineHandler(nil, m, nil, zap.NewNop())

	task := newTask(t, tasks.TypeMonitoringCycle, tasks.MonitoringCyclePayload{TriggeredBy: "scheduler"})
	require.NoError(t, h.HandleMonitoringCycle(context.Background(), task))
}

func TestHandleEvaluatePending(t *testing.T) {
	e := &mockEvaluate{result: &director.BatchResult{Evaluated: 2, Approved: 1, Rejected: 1}}
	h := NewPipelineHandler(nil, nil, e, zap.NewNop())

	task := newTask(t, tasks.TypeEvaluatePending, tasks.EvaluatePendingPayload{TriggeredBy: "manual"})
	require.NoError(t, h.HandleEvaluatePending(context.Background(), task))
}
