package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// Event 表示一次服务端推送，转发到外部系统时使用的统一结构。
type Event struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// NewEvent 为推送数据生成带唯一 ID 的事件。
func NewEvent(name string, data any) (Event, error) {
	if strings.TrimSpace(name) == "" {
		return Event{}, xerrors.New(xerrors.CodeInvalidArgument, "事件名称不能为空")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, xerrors.Wrap(xerrors.CodeEncodeFailure, err, "编码事件数据失败")
	}
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		Data:       raw,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Sink 负责把事件投递到外部系统。
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// 支持的驱动名称。
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
	DriverMySQL    = "mysql"
)

// Config 描述需要启用的转发目标。
type Config struct {
	Drivers  []string       `yaml:"drivers"`
	Memory   MemoryConfig   `yaml:"memory"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	MySQL    MySQLConfig    `yaml:"mysql"`
}

// MemoryConfig 控制内存 sink 的缓冲区大小。
type MemoryConfig struct {
	Buffer int `yaml:"buffer"`
}

// Open 根据配置构建 sink。启用多个驱动时返回 Fanout；未启用任何驱动时返回 nil。
func Open(ctx context.Context, cfg Config) (Sink, error) {
	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	for _, driver := range cfg.Drivers {
		sink, err := openDriver(ctx, strings.ToLower(strings.TrimSpace(driver)), cfg)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return NewFanout(sinks...), nil
	}
}

func openDriver(ctx context.Context, driver string, cfg Config) (Sink, error) {
	switch driver {
	case DriverMemory:
		return NewMemorySink(cfg.Memory.Buffer), nil
	case DriverRedis:
		return NewRedisSink(ctx, cfg.Redis)
	case DriverRabbitMQ:
		return NewRabbitMQSink(cfg.RabbitMQ)
	case DriverMySQL:
		return NewMySQLSink(ctx, cfg.MySQL)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的转发驱动: %q", driver))
	}
}
