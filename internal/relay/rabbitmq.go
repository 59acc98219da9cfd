package relay

import (
	"context"
	"encoding/json"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// RabbitMQConfig 描述 RabbitMQ sink 的连接参数。
type RabbitMQConfig struct {
	URL string `yaml:"url"`
	// Exchange 为空时直接投递到 Queue。
	Exchange     string `yaml:"exchange"`
	ExchangeType string `yaml:"exchange_type"`
	Queue        string `yaml:"queue"`
	// RoutingKey 为空时使用事件名称。
	RoutingKey string `yaml:"routing_key"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// amqpPublisher 是 RabbitMQSink 用到的 channel 方法子集。
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQSink 将事件发布到 RabbitMQ。
type RabbitMQSink struct {
	conn       *amqp.Connection
	ch         amqpPublisher
	exchange   string
	queue      string
	routingKey string
	durable    bool
}

// NewRabbitMQSink 创建 RabbitMQ sink，并声明所需的 exchange 或队列。
func NewRabbitMQSink(cfg RabbitMQConfig) (*RabbitMQSink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	cfg = cfg.withDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "创建 RabbitMQ channel 失败")
	}
	if cfg.Exchange != "" {
		err = ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, cfg.Durable, cfg.AutoDelete, false, false, nil)
	} else {
		_, err = ch.QueueDeclare(cfg.Queue, cfg.Durable, cfg.AutoDelete, false, false, nil)
	}
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeSinkFailure, err, "声明 RabbitMQ 拓扑失败")
	}
	sink := newRabbitMQSink(ch, cfg)
	sink.conn = conn
	return sink, nil
}

func (c RabbitMQConfig) withDefaults() RabbitMQConfig {
	if c.ExchangeType == "" {
		c.ExchangeType = amqp.ExchangeTopic
	}
	if c.Exchange == "" && c.Queue == "" {
		c.Queue = "unifiedmcp.events"
	}
	return c
}

func newRabbitMQSink(ch amqpPublisher, cfg RabbitMQConfig) *RabbitMQSink {
	cfg = cfg.withDefaults()
	return &RabbitMQSink{
		ch:         ch,
		exchange:   cfg.Exchange,
		queue:      cfg.Queue,
		routingKey: cfg.RoutingKey,
		durable:    cfg.Durable,
	}
}

// Publish 发布单个事件。
func (s *RabbitMQSink) Publish(ctx context.Context, event Event) error {
	if s == nil || s.ch == nil {
		return xerrors.New(xerrors.CodeSinkFailure, "RabbitMQ sink 未初始化")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeEncodeFailure, err, "编码事件失败")
	}

	key := s.routingKey
	switch {
	case s.exchange == "":
		key = s.queue
	case key == "":
		key = event.Name
	}

	msg := amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Type:        event.Name,
		Timestamp:   event.ReceivedAt,
		Body:        body,
	}
	if s.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	if err := s.ch.PublishWithContext(ctx, s.exchange, key, false, false, msg); err != nil {
		return xerrors.Wrap(xerrors.CodeSinkFailure, err, "RabbitMQ 发布事件失败")
	}
	return nil
}

// Close 关闭 channel 与连接。
func (s *RabbitMQSink) Close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
