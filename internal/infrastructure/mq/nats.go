package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsPublisher 把 topic 当作 subject 发布
type NatsPublisher struct {
	conn *nats.Conn
}

func DialNats(url string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("custody-ledger"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("连接 NATS 失败: %w", err)
	}
	return &NatsPublisher{conn: conn}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	msg := nats.NewMsg(topic)
	msg.Header.Set("Msg-Key", key)
	msg.Data = value
	if err := p.conn.PublishMsg(msg); err != nil {
		return err
	}
	// FlushWithContext 要求 ctx 带 deadline
	if _, ok := ctx.Deadline(); ok {
		return p.conn.FlushWithContext(ctx)
	}
	return p.conn.FlushTimeout(5 * time.Second)
}

func (p *NatsPublisher) Close() error {
	p.conn.Close()
	return nil
}
