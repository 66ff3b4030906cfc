package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address  string `yaml:"address"`  // MongoDB 服务器地址
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// EtcdConfig 定义了 Etcd 服务发现的连接配置。
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // Etcd 节点地址列表
	Username  string   `yaml:"username"`  // 用户名
	Password  string   `yaml:"password"`  // 密码
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topics  []string `yaml:"topics"`  // 需要确保存在的主题列表
}

// DatabaseConfigs 包含所有后端存储的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`   // Redis 配置 (Delegate 存活缓存)
	MySQL   MySQLConfig `yaml:"mysql"`   // MySQL 配置 (账户协作方)
	MongoDB MongoConfig `yaml:"mongodb"` // MongoDB 配置 (Delegate 与任务存储)
	Etcd    EtcdConfig  `yaml:"etcd"`    // Etcd 服务发现配置
	Kafka   KafkaConfig `yaml:"kafka"`   // Kafka 消息队列配置
}

// OrchestratorConfig 是编排服务自身的配置。
type OrchestratorConfig struct {
	ServerAddress       string `yaml:"serverAddress"`       // HTTP 监听地址
	AdvertiseAddress    string `yaml:"advertiseAddress"`    // 注册到 etcd 的对外地址
	ServiceName         string `yaml:"serviceName"`         // etcd 服务名 (例如: "fleet-orchestrator")
	DelegateCollection  string `yaml:"delegateCollection"`  // MongoDB Delegate 集合名
	TaskCollection      string `yaml:"taskCollection"`      // MongoDB 任务集合名
	EventsTopic         string `yaml:"eventsTopic"`         // 生命周期事件发布的 Kafka 主题
	ResponsesTopic      string `yaml:"responsesTopic"`      // 可选的任务响应回传主题
	ResponsesGroup      string `yaml:"responsesGroup"`      // 响应消费组
	HeartbeatTTLSeconds int    `yaml:"heartbeatTTLSeconds"` // 存活缓存键的过期时间
}

// SweeperConfig 是后台巡检的配置。阈值到期的处理发生在请求路径之外。
type SweeperConfig struct {
	IntervalSeconds     int `yaml:"intervalSeconds"`     // 巡检周期
	DelegateTTLSeconds  int `yaml:"delegateTTLSeconds"`  // 心跳静默多久后把 Delegate 标记为 DISABLED
	TaskTTLSeconds      int `yaml:"taskTTLSeconds"`      // 任务滞留多久后过期
}

// AgentConfig 是 Delegate 侧代理的配置。
type AgentConfig struct {
	AccountID           string `yaml:"accountId"`           // 所属租户
	OrchestratorAddress string `yaml:"orchestratorAddress"` // 编排服务地址，etcd 发现失败时的回退
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds"` // 轮询间隔
	MaxParallelTasks    int    `yaml:"maxParallelTasks"`    // 同时执行的任务上限
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Algorithm   string            `yaml:"algorithm"` // 支持: "fixedWindow", "tokenBucket"
	FixedWindow FixedWindowConfig `yaml:"fixedWindow"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// FixedWindowConfig 定义了固定窗口计数器算法的配置。
type FixedWindowConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // 例如: "1m", "30s"
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App          AppInfo            `yaml:"app"`          // 应用程序信息
	Logger       LoggerConfig       `yaml:"logger"`       // 日志记录器配置
	Databases    DatabaseConfigs    `yaml:"databases"`    // 后端存储配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator"` // 编排服务配置
	Sweeper      SweeperConfig      `yaml:"sweeper"`      // 后台巡检配置
	Agent        AgentConfig        `yaml:"agent"`        // Delegate 代理配置
	Middleware   MiddlewareConfig   `yaml:"middleware"`   // 中间件配置
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	// 将 YAML 内容解析到 cfg 结构体中。
	err = yaml.Unmarshal(yamlFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	return &cfg, nil
}
