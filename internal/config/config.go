package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	AI       AIConfig       `mapstructure:"ai"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // sqlite, postgres
	DSN             string `mapstructure:"dsn"`    // sqlite 文件路径或完整连接串
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置（asynq 任务队列使用）
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig AI 模型配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	OrgID      string `mapstructure:"org_id"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// PipelineConfig 机会流水线配置
type PipelineConfig struct {
	Hunter   HunterConfig   `mapstructure:"hunter"`
	Director DirectorConfig `mapstructure:"director"`
	Builder  BuilderConfig  `mapstructure:"builder"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
}

// HunterConfig 机会发现配置
type HunterConfig struct {
	IntervalHours  int      `mapstructure:"interval_hours"`  // 定时搜索间隔（小时）
	SearchBaseURL  string   `mapstructure:"search_base_url"` // 信号源搜索入口
	AllowedDomains []string `mapstructure:"allowed_domains"` // 抓取允许的域名
	Qualifiers     []string `mapstructure:"qualifiers"`      // 搜索限定词
}

// DirectorConfig 机会评估配置
type DirectorConfig struct {
	BatchDelaySeconds int `mapstructure:"batch_delay_seconds"` // 批量评估的间隔（秒）
}

// BuilderConfig 构建部署配置
type BuilderConfig struct {
	RepoAPIBaseURL   string `mapstructure:"repo_api_base_url"`   // 仓库托管 API
	RepoOwner        string `mapstructure:"repo_owner"`          // 新仓库归属组织
	RepoToken        string `mapstructure:"repo_token"`          // 仓库 API Token
	DeployAPIBaseURL string `mapstructure:"deploy_api_base_url"` // 托管平台 API
	DeployToken      string `mapstructure:"deploy_token"`        // 托管平台 Token
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`     // 外部调用超时（秒）
}

// MonitorConfig 健康监控配置
type MonitorConfig struct {
	ProbeTimeoutSeconds int `mapstructure:"probe_timeout_seconds"` // 探活超时（秒）
	HealthyThresholdMs  int `mapstructure:"healthy_threshold_ms"`  // 延迟低于该值视为 healthy
	SweepIntervalMin    int `mapstructure:"sweep_interval_min"`    // 监控扫描间隔（分钟）
}

// FeedbackConfig 反馈学习配置
type FeedbackConfig struct {
	HistoryCapacity int `mapstructure:"history_capacity"` // 投稿历史上限（超出淘汰最旧）
	ScoreGapAlert   int `mapstructure:"score_gap_alert"`  // 预测偏差告警阈值
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP") // 环境变量前缀：APP_
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	globalConfig = &cfg
	return &cfg, nil
}

// applyDefaults 为未配置的流水线参数填充默认值
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Hunter.IntervalHours <= 0 {
		cfg.Pipeline.Hunter.IntervalHours = 4
	}
	if cfg.Pipeline.Director.BatchDelaySeconds <= 0 {
		cfg.Pipeline.Director.BatchDelaySeconds = 1
	}
	if cfg.Pipeline.Builder.TimeoutSeconds <= 0 {
		cfg.Pipeline.Builder.TimeoutSeconds = 30
	}
	if cfg.Pipeline.Monitor.ProbeTimeoutSeconds <= 0 {
		cfg.Pipeline.Monitor.ProbeTimeoutSeconds = 10
	}
	if cfg.Pipeline.Monitor.HealthyThresholdMs <= 0 {
		cfg.Pipeline.Monitor.HealthyThresholdMs = 2000
	}
	if cfg.Pipeline.Monitor.SweepIntervalMin <= 0 {
		cfg.Pipeline.Monitor.SweepIntervalMin = 15
	}
	if cfg.Pipeline.Feedback.HistoryCapacity <= 0 {
		cfg.Pipeline.Feedback.HistoryCapacity = 500
	}
	if cfg.Pipeline.Feedback.ScoreGapAlert <= 0 {
		cfg.Pipeline.Feedback.ScoreGapAlert = 3
	}
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr 获取 Redis 连接地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
