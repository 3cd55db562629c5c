package service

import (
	"context"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/metrics"
	"github.com/pu-ac-cn/cas-sso/internal/store"
	"go.uber.org/zap"
)

// RunSweeper 按固定间隔清理过期票据，直到 ctx 结束。
// 过期判断仍由读路径惰性完成，清理只回收内存
func RunSweeper(ctx context.Context, sweeper store.Sweeper, interval time.Duration, now func() time.Time, logger *zap.Logger, m *metrics.Metrics) {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.Sweep(ctx, now())
			if err != nil {
				logger.Warn("清理过期票据失败", zap.Error(err))
				continue
			}
			m.Swept(n)
			if n > 0 {
				logger.Debug("清理过期票据", zap.Int("count", n))
			}
		}
	}
}
