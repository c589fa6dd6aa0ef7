package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry 工作者注册表：两级映射，工作者名 → 操作名 → 操作。
// 工作者名不允许包含下划线，限定名 {worker}_{operation} 在第一个
// 下划线处拆分，操作名自身可以包含下划线。
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*workerEntry
}

type workerEntry struct {
	name        string
	description string
	operations  map[string]Operation
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*workerEntry)}
}

// RegisterWorker 注册一个工作者。名字重复或含下划线时报错。
func (r *Registry) RegisterWorker(name, description string) error {
	if name == "" {
		return fmt.Errorf("工作者名不能为空")
	}
	if strings.Contains(name, "_") {
		return fmt.Errorf("工作者名 %q 不能包含下划线", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("工作者 %q 已注册", name)
	}
	r.workers[name] = &workerEntry{
		name:        name,
		description: description,
		operations:  make(map[string]Operation),
	}
	return nil
}

// RegisterOperation 向已注册的工作者添加操作
func (r *Registry) RegisterOperation(worker string, op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("操作名不能为空")
	}
	if op.Handler == nil {
		return fmt.Errorf("操作 %s_%s 缺少处理函数", worker, op.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.workers[worker]
	if !ok {
		return fmt.Errorf("工作者 %q 未注册", worker)
	}
	if _, exists := entry.operations[op.Name]; exists {
		return fmt.Errorf("操作 %s_%s 已注册", worker, op.Name)
	}
	entry.operations[op.Name] = op
	return nil
}

// Lookup 按工作者名与操作名查找操作
func (r *Registry) Lookup(worker, operation string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.workers[worker]
	if !ok {
		return Operation{}, false
	}
	op, ok := entry.operations[operation]
	return op, ok
}

// Workers 返回已注册的工作者名列表（字典序）
func (r *Registry) Workers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListOperations 展平为限定名列表，供函数调用式导出（字典序）
func (r *Registry) ListOperations() []ExportedOperation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ExportedOperation
	for _, entry := range r.workers {
		for _, op := range entry.operations {
			desc := op.Description
			if entry.description != "" {
				desc = entry.description + ": " + op.Description
			}
			out = append(out, ExportedOperation{
				Name:        entry.name + "_" + op.Name,
				Description: desc,
				Schema:      op.Schema,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
