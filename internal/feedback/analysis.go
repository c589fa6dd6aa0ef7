package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const rankLimit = 10

// AnalyzePerformance 对已打分的历史记录做排名与模式归纳
func (s *Service) AnalyzePerformance(ctx context.Context) (*Analysis, error) {
	var scored []PostPerformance
	err := s.db.WithContext(ctx).
		Where("actual_score IS NOT NULL").
		Find(&scored).Error
	if err != nil {
		return nil, fmt.Errorf("查询已打分记录失败: %w", err)
	}

	analysis := &Analysis{TotalScored: len(scored)}
	if len(scored) == 0 {
		return analysis, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].ActualScore > *scored[j].ActualScore
	})
	analysis.TopPosts = headPosts(scored, rankLimit)
	analysis.BottomPosts = tailPosts(scored, rankLimit)
	analysis.Patterns = extractPatterns(analysis.TopPosts, analysis.BottomPosts)
	analysis.Insights = buildInsights(scored)
	return analysis, nil
}

// GetLearnedContext 输出可注入提示词的经验摘要
func (s *Service) GetLearnedContext(ctx context.Context) (string, error) {
	analysis, err := s.AnalyzePerformance(ctx)
	if err != nil {
		return "", err
	}
	if analysis.TotalScored == 0 {
		return "", nil
	}

	var b strings.Builder
	if len(analysis.Patterns.WinningHooks) > 0 {
		fmt.Fprintf(&b, "表现好的开头: %s\n", strings.Join(capSlice(analysis.Patterns.WinningHooks, 3), " | "))
	}
	if len(analysis.Patterns.WinningTargets) > 0 {
		fmt.Fprintf(&b, "表现好的人群: %s\n", strings.Join(capSlice(analysis.Patterns.WinningTargets, 3), ", "))
	}
	if len(analysis.Patterns.WinningBenefits) > 0 {
		fmt.Fprintf(&b, "表现好的卖点: %s\n", strings.Join(capSlice(analysis.Patterns.WinningBenefits, 3), ", "))
	}
	if len(analysis.Patterns.LosingHooks) > 0 {
		fmt.Fprintf(&b, "避免的开头: %s\n", strings.Join(capSlice(analysis.Patterns.LosingHooks, 3), " | "))
	}
	for _, insight := range analysis.Insights {
		b.WriteString(insight)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// GetStats 返回汇总统计
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	var all []PostPerformance
	if err := s.db.WithContext(ctx).Find(&all).Error; err != nil {
		return nil, fmt.Errorf("查询发布记录失败: %w", err)
	}

	stats := &Stats{TotalPosts: len(all)}
	var sumScore, sumErr int
	for _, post := range all {
		stats.TotalImpressions += post.Impressions
		if post.ActualScore == nil {
			continue
		}
		stats.ScoredPosts++
		sumScore += *post.ActualScore
		gap := *post.ScoreGap
		if gap < 0 {
			gap = -gap
		}
		sumErr += gap
	}
	if stats.ScoredPosts > 0 {
		stats.AvgActualScore = float64(sumScore) / float64(stats.ScoredPosts)
		stats.AvgPredictError = float64(sumErr) / float64(stats.ScoredPosts)
	}
	return stats, nil
}

// ListPosts 按时间倒序列出发布记录
func (s *Service) ListPosts(ctx context.Context, limit int) ([]PostPerformance, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var posts []PostPerformance
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("查询发布记录失败: %w", err)
	}
	return posts, nil
}

func headPosts(sorted []PostPerformance, n int) []PostPerformance {
	if len(sorted) < n {
		n = len(sorted)
	}
	out := make([]PostPerformance, n)
	copy(out, sorted[:n])
	return out
}

func tailPosts(sorted []PostPerformance, n int) []PostPerformance {
	if len(sorted) < n {
		n = len(sorted)
	}
	out := make([]PostPerformance, n)
	copy(out, sorted[len(sorted)-n:])
	return out
}

// extractPatterns 从头部/尾部记录归纳开头句、人群与卖点
func extractPatterns(top, bottom []PostPerformance) Patterns {
	var p Patterns
	seenTarget := map[string]bool{}
	seenBenefit := map[string]bool{}
	for _, post := range top {
		if hook := openingHook(post.Text); hook != "" {
			p.WinningHooks = append(p.WinningHooks, hook)
		}
		if post.Target != "" && !seenTarget[post.Target] {
			seenTarget[post.Target] = true
			p.WinningTargets = append(p.WinningTargets, post.Target)
		}
		if post.Benefit != "" && !seenBenefit[post.Benefit] {
			seenBenefit[post.Benefit] = true
			p.WinningBenefits = append(p.WinningBenefits, post.Benefit)
		}
	}
	for _, post := range bottom {
		if hook := openingHook(post.Text); hook != "" {
			p.LosingHooks = append(p.LosingHooks, hook)
		}
	}
	return p
}

// openingHook 取正文开头作为"钩子"：首句，过长时截断到前 8 个词
func openingHook(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if idx := strings.IndexAny(text, ".!?。！？\n"); idx > 0 {
		text = text[:idx]
	}
	words := strings.Fields(text)
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}

// buildInsights 从全量打分记录生成结论性洞察
func buildInsights(scored []PostPerformance) []string {
	var insights []string

	// 预测偏差方向
	var gapSum, gapCount int
	for _, post := range scored {
		if post.ScoreGap != nil {
			gapSum += *post.ScoreGap
			gapCount++
		}
	}
	if gapCount > 0 {
		mean := float64(gapSum) / float64(gapCount)
		switch {
		case mean > 1:
			insights = append(insights, fmt.Sprintf("预测整体偏保守，实际平均高出 %.1f 分", mean))
		case mean < -1:
			insights = append(insights, fmt.Sprintf("预测整体偏乐观，实际平均低 %.1f 分", -mean))
		}
	}

	// 表现最好的人群标签
	type agg struct {
		sum, n int
	}
	byTarget := map[string]*agg{}
	for _, post := range scored {
		if post.Target == "" {
			continue
		}
		a := byTarget[post.Target]
		if a == nil {
			a = &agg{}
			byTarget[post.Target] = a
		}
		a.sum += *post.ActualScore
		a.n++
	}
	bestTarget, bestAvg := "", -1.0
	for target, a := range byTarget {
		avg := float64(a.sum) / float64(a.n)
		if avg > bestAvg {
			bestTarget, bestAvg = target, avg
		}
	}
	if bestTarget != "" {
		insights = append(insights, fmt.Sprintf("人群 %q 的平均分最高（%.1f）", bestTarget, bestAvg))
	}
	return insights
}

func capSlice(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
