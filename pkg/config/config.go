// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体；加载后只读，运行期仅路由校准参数可原子替换
type Config struct {
	API        APIConfig               `mapstructure:"api"`
	Router     RouterConfig            `mapstructure:"router"`
	Context    ContextConfig           `mapstructure:"context"`
	Domains    map[string]DomainConfig `mapstructure:"domains"`
	Memory     MemoryConfig            `mapstructure:"memory"`
	Snapshot   SnapshotConfig          `mapstructure:"snapshot"`
	Offers     OffersConfig            `mapstructure:"offers"`
	Supervisor SupervisorConfig        `mapstructure:"supervisor"`
	Log        LogConfig               `mapstructure:"log"`
	Monitoring MonitoringConfig        `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port      int     `mapstructure:"port"`
	Host      string  `mapstructure:"host"`
	Timeout   string  `mapstructure:"timeout"`
	RateLimit float64 `mapstructure:"rate_limit"` // 每秒请求上限，<=0 不限速
}

// RouterConfig 意图路由配置（阈值、粘性、校准）
type RouterConfig struct {
	DispatchThreshold float64           `mapstructure:"dispatch_threshold"` // ≥ 此值直接派发
	ClarifyThreshold  float64           `mapstructure:"clarify_threshold"`  // < 此值强制 clarify（治理护栏）
	SwitchThreshold   float64           `mapstructure:"switch_threshold"`   // 超过粘性域的置信度差值才允许切换
	MinTokens         int               `mapstructure:"min_tokens"`         // 少于此 token 数的输入强偏向粘性域
	Calibration       CalibrationConfig `mapstructure:"calibration"`
	EventWindow       int               `mapstructure:"event_window"`       // 重校准滚动窗口事件数
	RecalibrateEvery  string            `mapstructure:"recalibrate_every"`  // 进程内重校准周期，如 "10m"；空则不启动
	EventsFile        string            `mapstructure:"events_file"`        // 路由事件落盘路径（供 cmd/recal 离线重校准）；空则不落盘
	CalibrationFile   string            `mapstructure:"calibration_file"`   // 离线重校准输出/启动加载路径，可选
}

// CalibrationConfig Platt 校准初始参数；A 必须为负才能保证单调
type CalibrationConfig struct {
	A      float64 `mapstructure:"a"`
	B      float64 `mapstructure:"b"`
	MaxECE float64 `mapstructure:"max_ece"` // 重校准接受门槛，默认 0.05
}

// ContextConfig 上下文生命周期配置（融合与 Token 预算）
type ContextConfig struct {
	MaxTokens         int `mapstructure:"max_tokens"`          // 融合上下文 token 预算，默认 2048
	LastN             int `mapstructure:"last_n"`              // 融合包含的最近原文轮数，默认 5
	KeepVerbatim      int `mapstructure:"keep_verbatim"`       // 滚动摘要后保留的原文轮数，默认 5
	SummaryEvery      int `mapstructure:"summary_every"`       // 每多少轮触发滚动摘要，默认 10
	SummaryMaxChars   int `mapstructure:"summary_max_chars"`   // 摘要字符上限，默认 500
	ScratchMaxChars   int `mapstructure:"scratch_max_chars"`   // scratch 上下文裁剪上限，默认 500
	RecallMaxSnippets int `mapstructure:"recall_max_snippets"` // 长期召回片段上限，默认 3
}

// DomainConfig 单个业务域的路由线索与对话策略
type DomainConfig struct {
	Cues        []string          `mapstructure:"cues"`        // 词汇线索（命中加分）
	Exemplars   []string          `mapstructure:"exemplars"`   // 域内典型语句（词袋余弦相似）
	Refinements []string          `mapstructure:"refinements"` // 细化词表（"cheaper" 等，强偏向粘性域）
	Slots       SlotPolicyConfig  `mapstructure:"slots"`
	Relaxation  RelaxationConfig  `mapstructure:"relaxation"`
	OfferTTL    string            `mapstructure:"offer_ttl"` // 报盘缓存 TTL，默认 60s
	Prompts     map[string]string `mapstructure:"prompts"`   // askX / clarify / greeting 模板，可覆盖内置文案
}

// SlotPolicyConfig 槽位填充策略
type SlotPolicyConfig struct {
	Required  []string `mapstructure:"required"`   // 必填槽位（有序；支持 "location|anywhere" 备选）
	AskOrder  []string `mapstructure:"ask_order"`  // 追问顺序
	MinViable []string `mapstructure:"min_viable"` // COLLECTING→OFFERING 的最小可行槽位集
}

// RelaxationConfig 零结果放宽策略：显式有序步骤，每轮至多应用一条
type RelaxationConfig struct {
	Steps          []string `mapstructure:"steps"`            // widen_budget | drop_bedrooms | drop_tenure
	BudgetWidenPct float64  `mapstructure:"budget_widen_pct"` // widen_budget 放宽比例，默认 0.2
}

// MemoryConfig 长期记忆存储配置
type MemoryConfig struct {
	Type         string  `mapstructure:"type"`           // nop | postgres | http
	DSN          string  `mapstructure:"dsn"`            // type=postgres 时必填
	BaseURL      string  `mapstructure:"base_url"`       // type=http 时必填
	Timeout      string  `mapstructure:"timeout"`        // 召回/写入超时，默认 3s
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"` // http 客户端限速，默认 10
}

// SnapshotConfig 会话快照存储配置
type SnapshotConfig struct {
	Type     string `mapstructure:"type"`     // memory | file | redis
	Dir      string `mapstructure:"dir"`      // type=file 的目录
	Addr     string `mapstructure:"addr"`     // type=redis 的地址
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"` // redis 键过期，默认 72h；memory/file 忽略
}

// OffersConfig 报盘缓存与库存聚合配置
type OffersConfig struct {
	CacheType string          `mapstructure:"cache_type"` // memory | redis
	Addr      string          `mapstructure:"addr"`
	DB        int             `mapstructure:"db"`
	Password  string          `mapstructure:"password"`
	TTL       string          `mapstructure:"ttl"` // 默认 60s
	Inventory InventoryConfig `mapstructure:"inventory"`
}

// InventoryConfig 库存（listings）聚合查询后端
type InventoryConfig struct {
	Type string `mapstructure:"type"` // static | postgres
	DSN  string `mapstructure:"dsn"`
}

// SupervisorConfig 单轮编排与降级配置
type SupervisorConfig struct {
	TurnTimeout      string `mapstructure:"turn_timeout"`       // 单轮总超时，默认 15s
	MemoryTimeout    string `mapstructure:"memory_timeout"`     // 记忆存储调用超时，默认 3s
	OfferTimeout     string `mapstructure:"offer_timeout"`      // 报盘查询超时，默认 3s
	BreakerThreshold int    `mapstructure:"breaker_threshold"`  // 连续失败多少次打开熔断，默认 3
	BreakerReset     string `mapstructure:"breaker_reset"`      // 熔断重置等待，默认 30s
	DisableAfter     int    `mapstructure:"disable_after"`      // 分类器连续失败多少轮后禁用该域派发，默认 5
	FollowupQueue    int    `mapstructure:"followup_queue"`     // 后续任务队列容量，默认 64
	FollowupRetries  int    `mapstructure:"followup_retries"`   // 后续任务重试次数，默认 2
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadOrchestratorConfig 加载编排服务配置（configs/orchestrator.yaml）
func LoadOrchestratorConfig() (*Config, error) {
	return LoadConfig("configs/orchestrator.yaml")
}

// replaceEnvVars 替换配置中的 ${VAR} 环境变量（DSN、地址、密码）
func replaceEnvVars(config *Config) {
	config.Memory.DSN = expandEnv(config.Memory.DSN)
	config.Memory.BaseURL = expandEnv(config.Memory.BaseURL)
	config.Snapshot.Addr = expandEnv(config.Snapshot.Addr)
	config.Snapshot.Password = expandEnv(config.Snapshot.Password)
	config.Offers.Addr = expandEnv(config.Offers.Addr)
	config.Offers.Password = expandEnv(config.Offers.Password)
	config.Offers.Inventory.DSN = expandEnv(config.Offers.Inventory.DSN)
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		if val := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")); val != "" {
			return val
		}
	}
	return s
}

// applyDefaults 填充零值字段的默认值
func applyDefaults(c *Config) {
	if c.Router.DispatchThreshold <= 0 {
		c.Router.DispatchThreshold = 0.75
	}
	if c.Router.ClarifyThreshold <= 0 {
		c.Router.ClarifyThreshold = 0.4
	}
	if c.Router.SwitchThreshold <= 0 {
		c.Router.SwitchThreshold = 0.15
	}
	if c.Router.MinTokens <= 0 {
		c.Router.MinTokens = 3
	}
	if c.Router.Calibration.A == 0 {
		c.Router.Calibration.A = -6
	}
	if c.Router.Calibration.B == 0 {
		c.Router.Calibration.B = 3
	}
	if c.Router.Calibration.MaxECE <= 0 {
		c.Router.Calibration.MaxECE = 0.05
	}
	if c.Router.EventWindow <= 0 {
		c.Router.EventWindow = 500
	}
	if c.Context.MaxTokens <= 0 {
		c.Context.MaxTokens = 2048
	}
	if c.Context.LastN <= 0 {
		c.Context.LastN = 5
	}
	if c.Context.KeepVerbatim <= 0 {
		c.Context.KeepVerbatim = 5
	}
	if c.Context.SummaryEvery <= 0 {
		c.Context.SummaryEvery = 10
	}
	if c.Context.SummaryMaxChars <= 0 {
		c.Context.SummaryMaxChars = 500
	}
	if c.Context.ScratchMaxChars <= 0 {
		c.Context.ScratchMaxChars = 500
	}
	if c.Context.RecallMaxSnippets <= 0 {
		c.Context.RecallMaxSnippets = 3
	}
	if c.Supervisor.BreakerThreshold <= 0 {
		c.Supervisor.BreakerThreshold = 3
	}
	if c.Supervisor.DisableAfter <= 0 {
		c.Supervisor.DisableAfter = 5
	}
	if c.Supervisor.FollowupQueue <= 0 {
		c.Supervisor.FollowupQueue = 64
	}
	if c.Supervisor.FollowupRetries <= 0 {
		c.Supervisor.FollowupRetries = 2
	}
	for name, d := range c.Domains {
		if d.Relaxation.BudgetWidenPct <= 0 {
			d.Relaxation.BudgetWidenPct = 0.2
		}
		if d.OfferTTL == "" {
			d.OfferTTL = "60s"
		}
		c.Domains[name] = d
	}
}

// validate 校验阈值次序与校准单调性；配置错误应在启动时失败而非运行期
func validate(c *Config) error {
	if c.Router.ClarifyThreshold >= c.Router.DispatchThreshold {
		return fmt.Errorf("router.clarify_threshold(%v) 必须小于 dispatch_threshold(%v)",
			c.Router.ClarifyThreshold, c.Router.DispatchThreshold)
	}
	if c.Router.Calibration.A >= 0 {
		return fmt.Errorf("router.calibration.a 必须为负以保证校准单调非降，当前 %v", c.Router.Calibration.A)
	}
	return nil
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
