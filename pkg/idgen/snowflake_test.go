package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeUniqueUnderConcurrency(t *testing.T) {
	g, err := NewSnowflake(3)
	require.NoError(t, err)

	const workers, perWorker = 8, 2000
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, g.Generate())
			}
			mu.Lock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestNewSnowflakeRejectsBadWorker(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)
	assert.Error(t, Init(maxWorkerID+1))
}

func TestGenerateNumbers(t *testing.T) {
	require.NoError(t, Init(2))
	a, b := GenerateDepositNo(), GenerateDepositNo()
	assert.True(t, strings.HasPrefix(a, "DEP"))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(GenerateWithdrawalNo(), "WDR"))
}
