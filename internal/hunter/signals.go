package hunter

import (
	"strings"

	"backend/internal/pipeline"
)

// Signal 信号源返回的一条原始信号
type Signal struct {
	Title      string // 标题或首句
	Text       string // 正文
	URL        string // 原始链接
	Source     string // x, reddit, trends
	Engagement int    // 点赞、回复、转发等互动量合计
}

// 来源可靠度权重：互动量按来源折算后再做需求分档
var sourceReliability = map[string]float64{
	"x":      1.0,
	"reddit": 0.9,
	"trends": 0.8,
}

// EstimateDemand 需求分档：折算互动量 >100 高、>30 中、其余低
func EstimateDemand(engagement int, source string) pipeline.DemandLevel {
	weight, ok := sourceReliability[source]
	if !ok {
		weight = 0.5
	}
	weighted := float64(engagement) * weight
	switch {
	case weighted > 100:
		return pipeline.DemandHigh
	case weighted > 30:
		return pipeline.DemandMedium
	default:
		return pipeline.DemandLow
	}
}

// 类目关键词表：标题或正文命中关键词即归入对应类目。
// 顺序即优先级，多类目同时命中时取靠前者。
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"productivity", []string{"todo", "task", "schedule", "calendar", "notes", "效率", "待办", "日程"}},
	{"finance", []string{"invoice", "budget", "expense", "tax", "payment", "记账", "发票", "报销"}},
	{"marketing", []string{"landing", "newsletter", "seo", "email list", "waitlist", "获客", "落地页"}},
	{"devtools", []string{"api", "deploy", "webhook", "cli", "monitoring", "接口", "部署"}},
	{"content", []string{"blog", "podcast", "video", "transcript", "summary", "文案", "摘要"}},
	{"health", []string{"habit", "fitness", "sleep", "meditation", "打卡", "健身"}},
}

// 类目到推荐模板类目的映射
var categoryTemplates = map[string]string{
	"productivity": "tool",
	"finance":      "tool",
	"marketing":    "landing",
	"devtools":     "api",
	"content":      "tool",
	"health":       "tool",
}

// InferCategory 根据关键词表推断类目，未命中返回 "general"
func InferCategory(text string) string {
	lowered := strings.ToLower(text)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				return entry.category
			}
		}
	}
	return "general"
}

// SuggestTemplate 根据类目推荐模板类目，general 不做推荐
func SuggestTemplate(category string) string {
	return categoryTemplates[category]
}

// 痛点标记短语：信号正文中出现这些短语的句子被提取为痛点
var painMarkers = []string{
	"i wish",
	"i hate",
	"so annoying",
	"so frustrating",
	"why is there no",
	"why isn't there",
	"struggling with",
	"takes forever",
	"waste of time",
	"there should be",
	"can't find a",
	"希望有",
	"太麻烦",
	"浪费时间",
}

// ExtractPainPoints 从信号正文中提取含痛点标记的句子
func ExtractPainPoints(text string) []string {
	var points []string
	for _, sentence := range splitSentences(text) {
		lowered := strings.ToLower(sentence)
		for _, marker := range painMarkers {
			if strings.Contains(lowered, marker) {
				points = append(points, strings.TrimSpace(sentence))
				break
			}
		}
	}
	return points
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', '\n', '。', '！', '？':
			return true
		}
		return false
	})
}
