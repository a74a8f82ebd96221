package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// 充值单号、提现单号都由它生成，多实例部署时 workerID 必须不同
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

var (
	defaultGenerator *Snowflake
	mu               sync.Mutex
)

// Init 设置默认生成器的 workerID，进程启动时调用一次
func Init(workerID int64) error {
	g, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultGenerator = g
	mu.Unlock()
	return nil
}

// NextID 生成下一个ID
func NextID() int64 {
	mu.Lock()
	if defaultGenerator == nil {
		defaultGenerator = &Snowflake{workerID: 1}
	}
	g := defaultGenerator
	mu.Unlock()
	return g.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.timestamp {
		// 时钟回拨，沿用上次时间戳
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

func generateNo(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, NextID())
}

// GenerateDepositNo 充值单号，如 DEP123456789012345678
func GenerateDepositNo() string {
	return generateNo("DEP")
}

// GenerateWithdrawalNo 提现单号
func GenerateWithdrawalNo() string {
	return generateNo("WDR")
}
