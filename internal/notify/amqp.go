// Package notify 把单点登出事件广播给接入服务
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// 登出事件的 routing key
const logoutRoutingKey = "cas.logout"

var ErrExchangeRequired = errors.New("exchange 不能为空")

// Channel AMQP 通道中发布者用到的部分，*amqp.Channel 满足该接口
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher 把 LogoutEvent 以 JSON 发布到 fanout exchange
type AMQPPublisher struct {
	channel  Channel
	conn     *amqp.Connection
	exchange string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAMQPPublisher 基于已有通道创建发布者并声明 exchange
func NewAMQPPublisher(ch Channel, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		return nil, ErrExchangeRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := ch.ExchangeDeclare(
		exchange, // 名称
		"fanout", // 类型
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("声明 exchange 失败: %w", err)
	}

	return &AMQPPublisher{
		channel:  ch,
		exchange: exchange,
		timeout:  5 * time.Second,
		logger:   logger,
	}, nil
}

// Dial 连接 RabbitMQ 并创建发布者
func Dial(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("打开 RabbitMQ 通道失败: %w", err)
	}

	p, err := NewAMQPPublisher(ch, exchange, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// Publish 发布一条登出事件
func (p *AMQPPublisher) Publish(ctx context.Context, event *model.LogoutEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化登出事件失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,       // exchange
		logoutRoutingKey, // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.TGTID,
			Timestamp:    event.At,
			Headers: amqp.Table{
				"identity": event.Identity.String(),
			},
			Body: body,
		},
	)
	if err != nil {
		return fmt.Errorf("发布登出事件失败: %w", err)
	}
	return nil
}

// OnLogout 实现登出监听器，发布失败只记录日志
func (p *AMQPPublisher) OnLogout(ctx context.Context, event *model.LogoutEvent) {
	if err := p.Publish(ctx, event); err != nil {
		p.logger.Error("广播登出事件失败",
			zap.String("tgt_id", event.TGTID),
			zap.String("exchange", p.exchange),
			zap.Error(err),
		)
		return
	}
	p.logger.Info("登出事件已广播",
		zap.String("identity", event.Identity.String()),
		zap.Int("services", len(event.Services)),
	)
}

// Close 关闭通道和连接
func (p *AMQPPublisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
