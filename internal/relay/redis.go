package relay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// RedisConfig 描述 Redis sink 的连接参数。
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Channel 为 PUBLISH 的频道。
	Channel string `yaml:"channel"`
	// List 非空时同时 LPUSH 到该列表，供离线消费者读取。
	List string `yaml:"list"`
	// MaxLen 限制 List 的长度，0 表示不裁剪。
	MaxLen int64 `yaml:"max_len"`
}

// redisWriter 是 RedisSink 用到的命令子集，*redis.Client 满足该接口。
type redisWriter interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisSink 通过 Redis Pub/Sub 转发事件。
type RedisSink struct {
	client  redisWriter
	channel string
	list    string
	maxLen  int64
}

// NewRedisSink 创建 Redis sink 并校验连接。
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "连接 Redis 失败")
	}
	return newRedisSink(client, cfg), nil
}

func newRedisSink(client redisWriter, cfg RedisConfig) *RedisSink {
	channel := cfg.Channel
	if channel == "" {
		channel = "unifiedmcp:events"
	}
	return &RedisSink{client: client, channel: channel, list: cfg.List, maxLen: cfg.MaxLen}
}

// Publish 将事件编码为 JSON 后发布。
func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeEncodeFailure, err, "编码事件失败")
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeSinkFailure, err, "Redis 发布事件失败")
	}
	if s.list == "" {
		return nil
	}
	if err := s.client.LPush(ctx, s.list, payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeSinkFailure, err, "Redis 写入事件列表失败")
	}
	if s.maxLen > 0 {
		if err := s.client.LTrim(ctx, s.list, 0, s.maxLen-1).Err(); err != nil {
			return xerrors.Wrap(xerrors.CodeSinkFailure, err, "Redis 裁剪事件列表失败")
		}
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisSink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
