package tools

import (
	"context"
	"fmt"
)

// ParamSpec 单个参数的模式
type ParamSpec struct {
	Type        string   `json:"type"` // string, number, integer, boolean, array, object
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema 操作的参数模式
type Schema struct {
	Params   map[string]ParamSpec `json:"params"`
	Required []string             `json:"required,omitempty"`
}

// Handler 操作处理函数
type Handler func(ctx context.Context, params map[string]interface{}) (*Result, error)

// Operation 工作者暴露的一个操作
type Operation struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Schema      Schema  `json:"schema"`
	Handler     Handler `json:"-"`
}

// Result 操作调用结果
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK 构造成功结果
func OK(data interface{}, message string) *Result {
	return &Result{Success: true, Data: data, Message: message}
}

// Fail 构造失败结果
func Fail(format string, args ...interface{}) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ExportedOperation ListOperations 返回的展平描述，
// Name 为 {worker}_{operation} 形式的限定名
type ExportedOperation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Schema `json:"schema"`
}
