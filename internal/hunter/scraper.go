package hunter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ScraperConfig 网页抓取信号源的配置
type ScraperConfig struct {
	// SourceName 写入 Opportunity.Source 的来源标识
	SourceName string
	// BaseURL 搜索地址，查询词以 q 参数追加
	BaseURL string
	// AllowedDomains 允许访问的域名白名单，空表示不限制
	AllowedDomains []string
	// Timeout 单次请求超时
	Timeout time.Duration
	// Delay 同域请求间隔
	Delay time.Duration
	// MaxResults 单个查询词保留的最大结果数
	MaxResults int
	// 结果选择器
	ItemSelector       string // 单条结果容器
	TitleSelector      string // 容器内标题
	TextSelector       string // 容器内正文
	LinkSelector       string // 容器内链接
	EngagementSelector string // 容器内互动量数字
}

func (c *ScraperConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Delay <= 0 {
		c.Delay = time.Second
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 20
	}
	if c.ItemSelector == "" {
		c.ItemSelector = ".result"
	}
	if c.TitleSelector == "" {
		c.TitleSelector = ".title"
	}
	if c.TextSelector == "" {
		c.TextSelector = ".text"
	}
	if c.LinkSelector == "" {
		c.LinkSelector = "a"
	}
	if c.EngagementSelector == "" {
		c.EngagementSelector = ".engagement"
	}
}

// Scraper 基于 colly 的网页抓取信号源
type Scraper struct {
	cfg ScraperConfig
}

// NewScraper 创建抓取信号源
func NewScraper(cfg ScraperConfig) *Scraper {
	cfg.applyDefaults()
	return &Scraper{cfg: cfg}
}

// Name 返回来源标识
func (s *Scraper) Name() string {
	return s.cfg.SourceName
}

// Search 抓取搜索结果页并提取信号
func (s *Scraper) Search(ctx context.Context, query string) ([]Signal, error) {
	opts := []colly.CollectorOption{
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	}
	if len(s.cfg.AllowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(s.cfg.AllowedDomains...))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(s.cfg.Timeout)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      s.cfg.Delay,
	})

	var (
		signals  []Signal
		visitErr error
	)
	c.OnHTML(s.cfg.ItemSelector, func(e *colly.HTMLElement) {
		if len(signals) >= s.cfg.MaxResults {
			return
		}
		title := strings.TrimSpace(e.ChildText(s.cfg.TitleSelector))
		if title == "" {
			return
		}
		link := e.ChildAttr(s.cfg.LinkSelector, "href")
		if link != "" && !strings.HasPrefix(link, "http") {
			link = e.Request.AbsoluteURL(link)
		}
		signals = append(signals, Signal{
			Title:      title,
			Text:       strings.TrimSpace(e.ChildText(s.cfg.TextSelector)),
			URL:        link,
			Source:     s.cfg.SourceName,
			Engagement: parseEngagement(e.ChildText(s.cfg.EngagementSelector)),
		})
	})
	c.OnError(func(_ *colly.Response, err error) {
		visitErr = err
	})
	c.OnRequest(func(r *colly.Request) {
		// 透传调用方的取消信号
		select {
		case <-ctx.Done():
			r.Abort()
			visitErr = ctx.Err()
		default:
		}
	})

	target := s.cfg.BaseURL
	if strings.Contains(target, "?") {
		target += "&q=" + url.QueryEscape(query)
	} else {
		target += "?q=" + url.QueryEscape(query)
	}
	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("抓取 %s 失败: %w", s.cfg.SourceName, err)
	}
	c.Wait()
	if visitErr != nil {
		return nil, fmt.Errorf("抓取 %s 失败: %w", s.cfg.SourceName, visitErr)
	}
	return signals, nil
}

// parseEngagement 解析互动量文本，支持 "1.2k" 一类的缩写
func parseEngagement(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0
	}
	multiplier := 1.0
	switch {
	case strings.HasSuffix(text, "k"):
		multiplier = 1000
		text = strings.TrimSuffix(text, "k")
	case strings.HasSuffix(text, "m"):
		multiplier = 1000000
		text = strings.TrimSuffix(text, "m")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0
	}
	return int(n * multiplier)
}
