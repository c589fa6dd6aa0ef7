package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
)

// Dispatcher 按限定名调度操作并做参数校验
type Dispatcher struct {
	registry *Registry
	log      *zap.Logger
}

// NewDispatcher 创建调度器
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      logger.Get().Named("tools"),
	}
}

// Invoke 调用限定名指定的操作。限定名在第一个下划线处拆分为
// 工作者名与操作名。未知目标与参数校验失败都返回失败 Result 而非 error，
// error 只用于处理函数自身的执行错误。
func (d *Dispatcher) Invoke(ctx context.Context, qualifiedName string, params map[string]interface{}) (*Result, error) {
	worker, operation, ok := splitQualifiedName(qualifiedName)
	if !ok {
		metrics.ToolInvocationsTotal.WithLabelValues("unknown", "unknown", "invalid").Inc()
		return Fail("无效的操作名 %q，应为 {worker}_{operation} 形式", qualifiedName), nil
	}

	op, found := d.registry.Lookup(worker, operation)
	if !found {
		metrics.ToolInvocationsTotal.WithLabelValues(worker, operation, "not_found").Inc()
		return Fail("未找到操作 %q", qualifiedName), nil
	}

	if err := validateParams(op.Schema, params); err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(worker, operation, "invalid_params").Inc()
		return Fail("参数校验失败: %v", err), nil
	}

	result, err := op.Handler(ctx, params)
	if err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(worker, operation, "error").Inc()
		d.log.Error("操作执行失败",
			zap.String("operation", qualifiedName),
			zap.Error(err))
		return nil, err
	}
	status := "success"
	if result != nil && !result.Success {
		status = "failed"
	}
	metrics.ToolInvocationsTotal.WithLabelValues(worker, operation, status).Inc()
	return result, nil
}

// ListOperations 导出全部已注册操作
func (d *Dispatcher) ListOperations() []ExportedOperation {
	return d.registry.ListOperations()
}

// splitQualifiedName 在第一个下划线处拆分限定名
func splitQualifiedName(name string) (worker, operation string, ok bool) {
	idx := strings.Index(name, "_")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// validateParams 按模式校验参数：必填项、类型与枚举值
func validateParams(schema Schema, params map[string]interface{}) error {
	for _, required := range schema.Required {
		if _, present := params[required]; !present {
			return fmt.Errorf("缺少必填参数 %q", required)
		}
	}
	for name, value := range params {
		spec, known := schema.Params[name]
		if !known {
			return fmt.Errorf("未知参数 %q", name)
		}
		if err := checkType(name, spec, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, spec ParamSpec, value interface{}) error {
	if value == nil {
		return nil
	}
	switch spec.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("参数 %q 应为字符串", name)
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			return fmt.Errorf("参数 %q 的值 %q 不在枚举 %v 中", name, s, spec.Enum)
		}
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("参数 %q 应为数字", name)
		}
	case "integer":
		switch v := value.(type) {
		case int, int64:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("参数 %q 应为整数", name)
			}
		default:
			return fmt.Errorf("参数 %q 应为整数", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("参数 %q 应为布尔值", name)
		}
	case "array":
		switch value.(type) {
		case []interface{}, []string:
		default:
			return fmt.Errorf("参数 %q 应为数组", name)
		}
	case "object":
		switch value.(type) {
		case map[string]interface{}, map[string]string:
		default:
			return fmt.Errorf("参数 %q 应为对象", name)
		}
	}
	return nil
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
