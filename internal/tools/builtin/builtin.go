// Package builtin 在启动时把流水线各服务的操作注册进工具注册表。
// 注册是显式的，由 main 调用 RegisterAll，不依赖包导入副作用。
package builtin

import (
	"context"
	"fmt"
	"time"

	"backend/internal/builder"
	"backend/internal/director"
	"backend/internal/feedback"
	"backend/internal/hunter"
	"backend/internal/monitor"
	"backend/internal/tools"
)

// Services RegisterAll 需要的服务集合
type Services struct {
	Director *director.Service
	Hunter   *hunter.Service
	Builder  *builder.Service
	Monitor  *monitor.Service
	Feedback *feedback.Service
}

// RegisterAll 注册全部内置工作者及其操作
func RegisterAll(registry *tools.Registry, svcs Services) error {
	steps := []func(*tools.Registry, Services) error{
		registerDirector,
		registerHunter,
		registerBuilder,
		registerMonitor,
		registerFeedback,
	}
	for _, step := range steps {
		if err := step(registry, svcs); err != nil {
			return err
		}
	}
	return nil
}

func registerDirector(registry *tools.Registry, svcs Services) error {
	if err := registry.RegisterWorker("director", "机会评估"); err != nil {
		return err
	}
	if err := registry.RegisterOperation("director", tools.Operation{
		Name:        "evaluate_opportunity",
		Description: "评估单个机会并推进其状态",
		Schema: tools.Schema{
			Params: map[string]tools.ParamSpec{
				"opportunityId": {Type: "string", Description: "机会 ID"},
			},
			Required: []string{"opportunityId"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (*tools.Result, error) {
			id, _ := params["opportunityId"].(string)
			result, err := svcs.Director.EvaluateOpportunity(ctx, id)
			if err != nil {
				return tools.Fail("评估失败: %v", err), nil
			}
			return tools.OK(result, "评估完成"), nil
		},
	}); err != nil {
		return err
	}
	return registry.RegisterOperation("director", tools.Operation{
		Name:        "evaluate_pending",
		Description: "批量评估全部待评估机会",
		Schema:      tools.Schema{Params: map[string]tools.ParamSpec{}},
		Handler: func(ctx context.Context, _ map[string]interface{}) (*tools.Result, error) {
			result, err := svcs.Director.EvaluatePending(ctx)
			if err != nil {
				return tools.Fail("批量评估失败: %v", err), nil
			}
			return tools.OK(result, fmt.Sprintf("已评估 %d 个机会", result.Evaluated)), nil
		},
	})
}

func registerHunter(registry *tools.Registry, svcs Services) error {
	if err := registry.RegisterWorker("hunter", "机会搜寻"); err != nil {
		return err
	}
	if err := registry.RegisterOperation("hunter", tools.Operation{
		Name:        "add_opportunity",
		Description: "手工录入一个机会",
		Schema: tools.Schema{
			Params: map[string]tools.ParamSpec{
				"title":          {Type: "string", Description: "机会标题"},
				"description":    {Type: "string"},
				"targetAudience": {Type: "string"},
			},
			Required: []string{"title"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (*tools.Result, error) {
			title, _ := params["title"].(string)
			desc, _ := params["description"].(string)
			audience, _ := params["targetAudience"].(string)
			opp, err := svcs.Hunter.AddManual(ctx, hunter.ManualInput{
				Title:          title,
				Description:    desc,
				TargetAudience: audience,
			})
			if err != nil {
				return tools.Fail("录入失败: %v", err), nil
			}
			return tools.OK(opp, "机会已录入"), nil
		},
	}); err != nil {
		return err
	}
	return registry.RegisterOperation("hunter", tools.Operation{
		Name:        "run_hunt",
		Description: "执行一轮定时搜索",
		Schema:      tools.Schema{Params: map[string]tools.ParamSpec{}},
		Handler: func(ctx context.Context, _ map[string]interface{}) (*tools.Result, error) {
			result, err := svcs.Hunter.RunScheduledHunt(ctx)
			if err != nil {
				return tools.Fail("搜索失败: %v", err), nil
			}
			return tools.OK(result, fmt.Sprintf("发现 %d 个机会", result.OpportunitiesFound)), nil
		},
	})
}

func registerBuilder(registry *tools.Registry, svcs Services) error {
	if err := registry.RegisterWorker("builder", "产品构建"); err != nil {
		return err
	}
	return registry.RegisterOperation("builder", tools.Operation{
		Name:        "build_product",
		Description: "从模板构建并部署产品，缺省参数按评估产出的构建规格补齐",
		Schema: tools.Schema{
			Params: map[string]tools.ParamSpec{
				"opportunityId": {Type: "string"},
				"templateId":    {Type: "string"},
				"productName":   {Type: "string"},
				"description":   {Type: "string"},
			},
			Required: []string{"opportunityId"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (*tools.Result, error) {
			oppID, _ := params["opportunityId"].(string)
			tplID, _ := params["templateId"].(string)
			name, _ := params["productName"].(string)
			desc, _ := params["description"].(string)
			cfg := builder.BuildConfig{
				OpportunityID: oppID,
				TemplateID:    tplID,
				ProductName:   name,
				Description:   desc,
			}
			if cfg.TemplateID == "" || cfg.ProductName == "" {
				spec, err := svcs.Director.GenerateProductSpec(ctx, oppID)
				if err != nil {
					return tools.Fail("生成构建规格失败: %v", err), nil
				}
				derived := spec.BuildConfig(oppID)
				if cfg.TemplateID == "" {
					cfg.TemplateID = derived.TemplateID
				}
				if cfg.ProductName == "" {
					cfg.ProductName = derived.ProductName
				}
				if cfg.Description == "" {
					cfg.Description = derived.Description
				}
				cfg.Customizations = derived.Customizations
			}
			result, err := svcs.Builder.BuildProduct(ctx, cfg)
			if err != nil {
				return tools.Fail("构建失败: %v", err), nil
			}
			if !result.Success {
				return &tools.Result{Success: false, Data: result, Error: result.Error}, nil
			}
			return tools.OK(result, "构建完成"), nil
		},
	})
}

func registerMonitor(registry *tools.Registry, svcs Services) error {
	if err := registry.RegisterWorker("monitor", "产品巡检"); err != nil {
		return err
	}
	if err := registry.RegisterOperation("monitor", tools.Operation{
		Name:        "run_cycle",
		Description: "对全部在线产品执行一轮巡检",
		Schema:      tools.Schema{Params: map[string]tools.ParamSpec{}},
		Handler: func(ctx context.Context, _ map[string]interface{}) (*tools.Result, error) {
			summary, err := svcs.Monitor.RunMonitoringCycle(ctx)
			if err != nil {
				return tools.Fail("巡检失败: %v", err), nil
			}
			return tools.OK(summary, "巡检完成"), nil
		},
	}); err != nil {
		return err
	}
	return registry.RegisterOperation("monitor", tools.Operation{
		Name:        "get_summary",
		Description: "返回最近一轮巡检结果",
		Schema:      tools.Schema{Params: map[string]tools.ParamSpec{}},
		Handler: func(_ context.Context, _ map[string]interface{}) (*tools.Result, error) {
			summary := svcs.Monitor.LastSummary()
			if summary == nil {
				return tools.Fail("尚未执行过巡检"), nil
			}
			return tools.OK(summary, "最近一轮巡检结果"), nil
		},
	})
}

func registerFeedback(registry *tools.Registry, svcs Services) error {
	if err := registry.RegisterWorker("feedback", "发布表现反馈"); err != nil {
		return err
	}
	if err := registry.RegisterOperation("feedback", tools.Operation{
		Name:        "record_post",
		Description: "记录一次内容发布",
		Schema: tools.Schema{
			Params: map[string]tools.ParamSpec{
				"externalId":     {Type: "string"},
				"text":           {Type: "string"},
				"target":         {Type: "string"},
				"benefit":        {Type: "string"},
				"predictedScore": {Type: "integer", Description: "发布前的预测分（0-15）"},
			},
			Required: []string{"text"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (*tools.Result, error) {
			text, _ := params["text"].(string)
			externalID, _ := params["externalId"].(string)
			target, _ := params["target"].(string)
			benefit, _ := params["benefit"].(string)
			predicted := 0
			if v, ok := params["predictedScore"].(float64); ok {
				predicted = int(v)
			}
			post, err := svcs.Feedback.RecordPost(ctx, feedback.RecordInput{
				ExternalID:     externalID,
				Text:           text,
				Target:         target,
				Benefit:        benefit,
				PredictedScore: predicted,
				PostedAt:       time.Now().UTC(),
			})
			if err != nil {
				return tools.Fail("记录失败: %v", err), nil
			}
			return tools.OK(post, "发布已记录"), nil
		},
	}); err != nil {
		return err
	}
	if err := registry.RegisterOperation("feedback", tools.Operation{
		Name:        "update_metrics",
		Description: "按平台侧 ID 回填互动指标",
		Schema: tools.Schema{
			Params: map[string]tools.ParamSpec{
				"externalId":  {Type: "string"},
				"impressions": {Type: "integer"},
				"likes":       {Type: "integer"},
				"reshares":    {Type: "integer"},
				"replies":     {Type: "integer"},
				"clicks":      {Type: "integer"},
			},
			Required: []string{"externalId"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (*tools.Result, error) {
			externalID, _ := params["externalId"].(string)
			asInt := func(key string) int {
				if v, ok := params[key].(float64); ok {
					return int(v)
				}
				return 0
			}
			post, err := svcs.Feedback.UpdateByExternalID(ctx, externalID, feedback.EngagementMetrics{
				Impressions: asInt("impressions"),
				Likes:       asInt("likes"),
				Reshares:    asInt("reshares"),
				Replies:     asInt("replies"),
				Clicks:      asInt("clicks"),
			})
			if err != nil {
				return tools.Fail("回填失败: %v", err), nil
			}
			return tools.OK(post, "指标已回填"), nil
		},
	}); err != nil {
		return err
	}
	if err := registry.RegisterOperation("feedback", tools.Operation{
		Name:        "analyze",
		Description: "分析历史发布表现",
		Schema:      tools.Schema{Params: map[string]tools.ParamSpec{}},
		Handler: func(ctx context.Context, _ map[string]interface{}) (*tools.Result, error) {
			analysis, err := svcs.Feedback.AnalyzePerformance(ctx)
			if err != nil {
				return tools.Fail("分析失败: %v", err), nil
			}
			return tools.OK(analysis, "分析完成"), nil
		},
	}); err != nil {
		return err
	}
	return registry.RegisterOperation("feedback", tools.Operation{
		Name:        "get_context",
		Description: "获取沉淀的经验摘要",
		Schema:      tools.Schema{Params: map[string]tools.ParamSpec{}},
		Handler: func(ctx context.Context, _ map[string]interface{}) (*tools.Result, error) {
			learned, err := svcs.Feedback.GetLearnedContext(ctx)
			if err != nil {
				return tools.Fail("获取经验失败: %v", err), nil
			}
			return tools.OK(learned, "经验摘要"), nil
		},
	})
}
