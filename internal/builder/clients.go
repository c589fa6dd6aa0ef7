package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"backend/pkg/httputil"
)

// ClientConfig 默认 HTTP 协作方的配置
type ClientConfig struct {
	// RepoAPIBaseURL 仓库托管服务 API 地址
	RepoAPIBaseURL string
	// RepoOwner 新仓库归属的组织或账号
	RepoOwner string
	// RepoToken 仓库服务访问令牌
	RepoToken string
	// DeployAPIBaseURL 部署平台 API 地址
	DeployAPIBaseURL string
	// DeployToken 部署平台访问令牌
	DeployToken string
	// Timeout 单次请求超时
	Timeout time.Duration
}

func (c *ClientConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// newAPIClient 创建带鉴权头的 JSON 客户端
func newAPIClient(cfg ClientConfig, token string) *httputil.Client {
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	// 只有状态查询这类幂等请求会被传输层重试，写操作失败直接上抛
	return httputil.NewClient(
		httputil.WithTimeout(cfg.Timeout),
		httputil.WithHeaders(headers),
		httputil.WithRetries(2),
	)
}

// HTTPRepoCloner 基于模板生成接口的仓库克隆实现
type HTTPRepoCloner struct {
	cfg    ClientConfig
	client *httputil.Client
}

// NewHTTPRepoCloner 创建仓库克隆客户端
func NewHTTPRepoCloner(cfg ClientConfig) *HTTPRepoCloner {
	cfg.applyDefaults()
	return &HTTPRepoCloner{
		cfg:    cfg,
		client: newAPIClient(cfg, cfg.RepoToken),
	}
}

// Clone 调用模板生成接口创建新仓库
func (c *HTTPRepoCloner) Clone(ctx context.Context, templateRepoURL, productName string) (string, error) {
	tplPath := templateRepoPath(templateRepoURL)
	if tplPath == "" {
		return "", fmt.Errorf("模板仓库地址无效: %s", templateRepoURL)
	}
	endpoint := fmt.Sprintf("%s/repos/%s/generate", strings.TrimRight(c.cfg.RepoAPIBaseURL, "/"), tplPath)
	payload := map[string]interface{}{
		"owner":   c.cfg.RepoOwner,
		"name":    slugify(productName),
		"private": true,
	}

	var resp struct {
		HTMLURL string `json:"html_url"`
	}
	if err := c.client.PostJSON(ctx, endpoint, payload, &resp); err != nil {
		return "", fmt.Errorf("创建仓库失败: %w", err)
	}
	if resp.HTMLURL == "" {
		return "", fmt.Errorf("仓库服务未返回新仓库地址")
	}
	return resp.HTMLURL, nil
}

// HTTPCustomizer 通过仓库内容接口提交定制文件
type HTTPCustomizer struct {
	cfg    ClientConfig
	client *httputil.Client
}

// NewHTTPCustomizer 创建定制客户端
func NewHTTPCustomizer(cfg ClientConfig) *HTTPCustomizer {
	cfg.applyDefaults()
	return &HTTPCustomizer{
		cfg:    cfg,
		client: newAPIClient(cfg, cfg.RepoToken),
	}
}

// Apply 把定制字段以 JSON 配置文件的形式写入仓库
func (c *HTTPCustomizer) Apply(ctx context.Context, repoURL string, customizations map[string]string) error {
	if len(customizations) == 0 {
		return nil
	}
	repoPath := templateRepoPath(repoURL)
	if repoPath == "" {
		return fmt.Errorf("产品仓库地址无效: %s", repoURL)
	}
	endpoint := fmt.Sprintf("%s/repos/%s/contents/site.config.json",
		strings.TrimRight(c.cfg.RepoAPIBaseURL, "/"), repoPath)
	content, err := json.MarshalIndent(customizations, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化定制内容失败: %w", err)
	}
	payload := map[string]interface{}{
		"message": "apply customizations",
		"content": content,
	}
	if err := c.client.PostJSON(ctx, endpoint, payload, nil); err != nil {
		return fmt.Errorf("写入定制配置失败: %w", err)
	}
	return nil
}

// HTTPDeployTarget 部署平台客户端
type HTTPDeployTarget struct {
	cfg    ClientConfig
	client *httputil.Client
}

// NewHTTPDeployTarget 创建部署客户端
func NewHTTPDeployTarget(cfg ClientConfig) *HTTPDeployTarget {
	cfg.applyDefaults()
	return &HTTPDeployTarget{
		cfg:    cfg,
		client: newAPIClient(cfg, cfg.DeployToken),
	}
}

// Deploy 提交部署请求并返回公网地址
func (c *HTTPDeployTarget) Deploy(ctx context.Context, repoURL, productName string) (string, error) {
	endpoint := strings.TrimRight(c.cfg.DeployAPIBaseURL, "/") + "/deployments"
	payload := map[string]interface{}{
		"name":    slugify(productName),
		"repoUrl": repoURL,
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := c.client.PostJSON(ctx, endpoint, payload, &resp); err != nil {
		return "", fmt.Errorf("提交部署失败: %w", err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("部署平台未返回访问地址")
	}
	if !strings.HasPrefix(resp.URL, "http") {
		resp.URL = "https://" + resp.URL
	}
	return resp.URL, nil
}

// templateRepoPath 从仓库 URL 提取 owner/name 两段路径
func templateRepoPath(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return ""
	}
	owner, name := parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || name == "" || strings.Contains(owner, ":") {
		return ""
	}
	return owner + "/" + name
}

// slugify 产品名转为仓库/子域名安全的短名
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
