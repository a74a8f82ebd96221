package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"custody/internal/config"
	"custody/internal/infrastructure/lock"
	"custody/internal/ledger"
	"custody/internal/metrics"
	"custody/internal/model"
	"custody/internal/repository"
)

// ActivityRecorder 用户动态的追加与查询
// 账本事务提交之后才追加，写入失败要上报，不能吞掉
type ActivityRecorder interface {
	Record(ctx context.Context, event *model.ActivityEvent) error
	ListRecent(ctx context.Context, accountID int64, limit int) ([]*model.ActivityEvent, error)
}

// Deps 各服务共享的依赖，由 main 构造后注入
type Deps struct {
	DB       *gorm.DB
	Locker   lock.Locker
	Engine   *ledger.Engine
	Recorder ActivityRecorder
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Clock    func() time.Time

	Token         string // 展示用币种，如 USDT
	Topic         string // 账本事件 topic
	ActivityLimit int
}

func NewDeps(db *gorm.DB, locker lock.Locker, cfg *config.Config) (*Deps, error) {
	policy, err := cfg.Business.BonusPolicy()
	if err != nil {
		return nil, err
	}

	limit := cfg.Business.ActivityLimit
	if limit <= 0 {
		limit = 10
	}

	return &Deps{
		DB:            db,
		Locker:        locker,
		Engine:        ledger.NewEngine(policy, cfg.Business.WithdrawLock),
		Recorder:      repository.NewActivityRepository(db),
		Metrics:       metrics.New(),
		Logger:        zerolog.Nop(),
		Clock:         time.Now,
		Token:         cfg.Business.Token,
		Topic:         cfg.Broker.Topic,
		ActivityLimit: limit,
	}, nil
}

func (d *Deps) now() time.Time {
	return d.Clock().UTC()
}

// transact 原子单元：一旦开始不随调用方取消而中断，要么全部提交要么全部回滚
func (d *Deps) transact(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	txCtx := context.WithoutCancel(ctx)
	return d.DB.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		return fn(txCtx, tx)
	})
}

func (d *Deps) lock(ctx context.Context, key string) (func(), error) {
	release, err := d.Locker.Acquire(ctx, key)
	if err != nil {
		return nil, ledger.StorageFault(err)
	}
	return release, nil
}

func (d *Deps) fail(kind string, err error) error {
	d.Metrics.RequestsFailed.WithLabelValues(kind, string(ledger.CodeOf(err))).Inc()
	return err
}

// recordActivity 账本已提交后追加动态，失败返回 ACTIVITY_INCONSISTENT 交给对账任务补偿
func (d *Deps) recordActivity(ctx context.Context, event *model.ActivityEvent) error {
	if err := d.Recorder.Record(context.WithoutCancel(ctx), event); err != nil {
		d.Metrics.ActivityInconsistency.Inc()
		d.Logger.Error().
			Err(err).
			Str("request_no", event.RequestNo).
			Int64("account_id", event.AccountID).
			Msg("账本已提交，动态写入失败，等待对账")
		return ledger.Inconsistent(err)
	}
	return nil
}
