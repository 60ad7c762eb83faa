// Package feed 实现原始数据的导入任务。
// 数据源为 Postgres 轮询或 WebSocket 推送，二者都把原始响应写入主队列；
// 刷新任务按调度器轮转逐条重新获取挂单。
package feed

import (
	"context"

	"skin-arbitrage-monitor/internal/core/model"
)

// Sink 主队列写入
type Sink interface {
	// Submit 阻塞写入
	Submit(ctx context.Context, ev model.PrimaryEvent) error
	// TrySubmit 非阻塞写入，队列满时丢弃
	TrySubmit(ev model.PrimaryEvent) bool
}

// Source 原始数据源
type Source interface {
	// Run 持续导入直到 ctx 取消
	Run(ctx context.Context) error
}
