package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"custody/internal/metrics"
	"custody/internal/model"
	"custody/internal/repository"
	"custody/internal/service"
)

// ActivityReconciler 补写账本已提交但动态缺失的记录
//
// 审核通过后动态写入失败时接口返回 ACTIVITY_INCONSISTENT，这里按 request_no 幂等补齐
type ActivityReconciler struct {
	depositRepo    *repository.DepositRepository
	withdrawalRepo *repository.WithdrawalRepository
	recorder       service.ActivityRecorder
	metrics        *metrics.Metrics
	log            zerolog.Logger
	token          string
	stopCh         chan struct{}
	interval       time.Duration
	batchSize      int
}

func NewActivityReconciler(db *gorm.DB, recorder service.ActivityRecorder, m *metrics.Metrics, log zerolog.Logger, token string) *ActivityReconciler {
	return &ActivityReconciler{
		depositRepo:    repository.NewDepositRepository(db),
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		recorder:       recorder,
		metrics:        m,
		log:            log,
		token:          token,
		stopCh:         make(chan struct{}),
		interval:       30 * time.Second,
		batchSize:      50,
	}
}

func (j *ActivityReconciler) Start(ctx context.Context) {
	j.log.Info().Msg("动态对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info().Msg("任务停止")
			return
		case <-ticker.C:
			j.reconcile(ctx)
		}
	}
}

func (j *ActivityReconciler) Stop() {
	close(j.stopCh)
}

// reconcile 返回本轮补写的条数
func (j *ActivityReconciler) reconcile(ctx context.Context) int {
	var events []*model.ActivityEvent

	deposits, err := j.depositRepo.ListApprovedWithoutActivity(ctx, j.batchSize)
	if err != nil {
		j.log.Error().Err(err).Msg("查询缺失动态的充值失败")
	}
	for _, d := range deposits {
		events = append(events, service.DepositActivity(d, j.token))
	}

	withdrawals, err := j.withdrawalRepo.ListApprovedWithoutActivity(ctx, j.batchSize)
	if err != nil {
		j.log.Error().Err(err).Msg("查询缺失动态的提现失败")
	}
	for _, w := range withdrawals {
		events = append(events, service.WithdrawalActivity(w, j.token))
	}

	if len(events) == 0 {
		return 0
	}
	j.log.Warn().Int("count", len(events)).Msg("发现缺失动态的已审核申请")

	fixed := 0
	for _, ev := range events {
		if err := j.recorder.Record(ctx, ev); err != nil {
			j.log.Error().Err(err).Str("request_no", ev.RequestNo).Msg("补写动态失败")
			continue
		}
		fixed++
		j.metrics.ActivityReconciled.Inc()
		j.log.Info().Str("request_no", ev.RequestNo).Int64("account_id", ev.AccountID).Msg("动态已补写")
	}
	return fixed
}
