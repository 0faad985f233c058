// Package classifier 定义分类器适配层
//
// 分类器本体（逐帧 CV/ML 推理）是外部黑盒：检测进程持有采集设备并按节奏
// 输出离散的标签事件。本包只负责把事件流接入监控流水线：
// - Source: 为某个 (监控类型, 用户) 打开一条事件流
// - Stream: 惰性、无限、不可重启的事件序列，直到 Close
//
// 模型资源缺失时 Open 返回 ErrModelUnavailable，由生命周期控制器降级到
// 合成基线流，会话不会因此失败。
package classifier

import (
	"context"
	"errors"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
)

var (
	// ErrModelUnavailable 分类器所需的模型/资源缺失（会话降级，不报错退出）
	ErrModelUnavailable = errors.New("classifier model unavailable")

	// ErrStreamClosed 事件流已关闭
	ErrStreamClosed = errors.New("classifier stream closed")
)

// Stream 分类事件流
type Stream interface {
	// Next 阻塞等待下一个事件；流关闭返回 ErrStreamClosed，上下文取消返回 ctx.Err()
	Next(ctx context.Context) (models.ClassificationEvent, error)
	Close() error
}

// Source 分类事件源（每种监控类型一个实例）
type Source interface {
	Open(ctx context.Context, userID string) (Stream, error)
}
