package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"custody/internal/infrastructure/mq"
	"custody/internal/metrics"
	"custody/internal/model"
	"custody/internal/repository"
)

// OutboxSender 轮询 outbox 表，把账本事件投递到消息队列
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	metrics    *metrics.Metrics
	log        zerolog.Logger
	maxRetries int
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, m *metrics.Metrics, log zerolog.Logger, maxRetries int) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		metrics:    m,
		log:        log,
		maxRetries: maxRetries,
		stopCh:     make(chan struct{}),
		interval:   200 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info().Msg("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info().Msg("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("查询消息失败")
		return
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, []byte(msg.Payload))
	if err == nil {
		s.metrics.OutboxMessages.WithLabelValues("sent").Inc()
		if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			// 会被再次投递，消费方按 request_no 去重
			s.log.Error().Err(err).Int64("id", msg.ID).Msg("更新消息状态失败")
			return
		}
		s.log.Debug().Int64("id", msg.ID).Str("topic", msg.Topic).Str("key", msg.MessageKey).Msg("消息发送成功")
		return
	}

	s.metrics.OutboxMessages.WithLabelValues("error").Inc()
	s.log.Warn().Err(err).Int64("id", msg.ID).Int("retry", msg.RetryCount).Msg("消息发送失败")

	failed, err := s.outboxRepo.RecordFailure(ctx, msg, s.maxRetries)
	if err != nil {
		s.log.Error().Err(err).Int64("id", msg.ID).Msg("记录重试次数失败")
		return
	}
	if failed {
		s.metrics.OutboxMessages.WithLabelValues("failed").Inc()
		s.log.Error().Int64("id", msg.ID).Str("key", msg.MessageKey).Msg("消息超过最大重试次数，标记为失败")
	}
}
