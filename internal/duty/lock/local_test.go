package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
)

func TestLocalSerializesSameDuty(t *testing.T) {
	l := NewLocal()
	dutyID := id.NewDutyID()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), dutyID)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal()
	dutyID := id.NewDutyID()

	unlock, err := l.Lock(context.Background(), dutyID)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, dutyID)
	assert.ErrorIs(t, err, sentinel.ErrLocked)
}
