package director

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"backend/internal/pipeline"
)

const evaluationSystemPrompt = `你是小型软件产品的投资评审。对给定的业务机会从五个维度打分（每项 1-10 的整数）：
- marketSize 市场规模
- competition 竞争格局（分数越高表示竞争越有利）
- feasibility 用现有模板实现的可行性
- profitPotential 盈利潜力
- timeToMarket 上线速度（分数越高表示越快）

只输出一个 JSON 对象，不要输出其他文字：
{
  "criteria": {"marketSize": N, "competition": N, "feasibility": N, "profitPotential": N, "timeToMarket": N},
  "reasoning": "一段简短说明",
  "approved": true/false,
  "spec": { // 仅在 approved 为 true 时给出
    "name": "产品名称",
    "tagline": "一句话卖点",
    "targetAudience": "具体目标用户",
    "coreFeatures": ["功能1", "功能2"],
    "differentiators": ["差异化点"],
    "monetization": "收费方式",
    "templateId": "选用的模板 ID",
    "customizations": {"字段名": "定制值"}
  }
}`

const specSystemPrompt = `你是产品负责人。根据机会描述输出面向模板化构建的产品规格，只输出一个 JSON 对象，不要输出其他文字：
{"name":"产品名称","tagline":"一句话卖点","targetAudience":"具体目标用户","coreFeatures":["功能1"],"differentiators":["差异化点"],"monetization":"收费方式","templateId":"选用的模板 ID","customizations":{"字段名":"定制值"}}`

// buildEvaluationPrompt 组装机会评估提示词
func buildEvaluationPrompt(opp *pipeline.Opportunity, templates []pipeline.Template, learnedContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "机会标题: %s\n", opp.Title)
	fmt.Fprintf(&b, "描述: %s\n", opp.Description)
	fmt.Fprintf(&b, "来源: %s\n", opp.Source)
	if opp.TargetAudience != "" {
		fmt.Fprintf(&b, "目标用户: %s\n", opp.TargetAudience)
	}
	if len(opp.PainPoints) > 0 {
		fmt.Fprintf(&b, "痛点: %s\n", strings.Join(opp.PainPoints, "; "))
	}
	if len(opp.Keywords) > 0 {
		fmt.Fprintf(&b, "关键词: %s\n", strings.Join(opp.Keywords, ", "))
	}
	fmt.Fprintf(&b, "需求估计: %s\n", opp.EstimatedDemand)

	if len(templates) > 0 {
		b.WriteString("\n可用模板:\n")
		for _, tpl := range templates {
			if tpl.Status != pipeline.TemplateActive {
				continue
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", tpl.Name, tpl.Category, tpl.Description)
		}
	}

	if learnedContext != "" {
		b.WriteString("\n历史发布表现经验（评估时参考）:\n")
		b.WriteString(learnedContext)
		b.WriteString("\n")
	}
	return b.String()
}

// buildSpecPrompt 组装构建说明提示词
func buildSpecPrompt(opp *pipeline.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "机会: %s\n%s\n", opp.Title, opp.Description)
	if opp.EvaluationNotes != "" {
		fmt.Fprintf(&b, "评审结论: %s\n", opp.EvaluationNotes)
	}
	if opp.SuggestedTemplate != "" {
		fmt.Fprintf(&b, "推荐模板: %s\n", opp.SuggestedTemplate)
	}
	return b.String()
}

// verdict 模型评估结论
type verdict struct {
	Criteria  Criteria     `json:"criteria"`
	Reasoning string       `json:"reasoning"`
	Approved  bool         `json:"approved"`
	Spec      *ProductSpec `json:"spec,omitempty"`
}

// parseVerdict 从模型输出中提取第一个 JSON 对象并校验必填字段。
// 模型偶尔会在 JSON 外包裹说明文字或代码块标记，这里只取花括号配对的部分。
func parseVerdict(content string) (*verdict, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var v struct {
		Criteria  *Criteria    `json:"criteria"`
		Reasoning string       `json:"reasoning"`
		Approved  *bool        `json:"approved"`
		Spec      *ProductSpec `json:"spec"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("解析评估结论失败: %w", err)
	}
	if v.Criteria == nil {
		return nil, errors.New("评估结论缺少 criteria 字段")
	}
	if v.Approved == nil {
		return nil, errors.New("评估结论缺少 approved 字段")
	}
	for name, score := range map[string]int{
		"marketSize":      v.Criteria.MarketSize,
		"competition":     v.Criteria.Competition,
		"feasibility":     v.Criteria.Feasibility,
		"profitPotential": v.Criteria.ProfitPotential,
		"timeToMarket":    v.Criteria.TimeToMarket,
	} {
		if score < 1 || score > 10 {
			return nil, fmt.Errorf("评估维度 %s 的分数 %d 超出 1-10 范围", name, score)
		}
	}
	return &verdict{
		Criteria:  *v.Criteria,
		Reasoning: v.Reasoning,
		Approved:  *v.Approved,
		Spec:      v.Spec,
	}, nil
}

// extractJSON 取出文本中第一个配对完整的顶层 JSON 对象
func extractJSON(content string) (string, error) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", errors.New("模型输出中没有 JSON 对象")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", errors.New("模型输出中的 JSON 对象不完整")
}
