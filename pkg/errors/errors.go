// Package errors 提供统一错误辅助与编排引擎的错误分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrClassifierUnavailable 意图分类器加载/推理失败，调用方回退 sticky domain 或 clarify
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrMemoryTimeout 长期记忆存储慢/不可达，调用方跳过长期召回
	ErrMemoryTimeout = errors.New("memory store timeout")
	// ErrSnapshotCorrupt 持久化的会话快照损坏，调用方降级为全新会话
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
	// ErrStoreUnavailable 库存聚合查询失败，调用方回复"暂时无法查询"
	ErrStoreUnavailable = errors.New("inventory store unavailable")
	// ErrCircuitOpen 熔断器打开，调用方走降级路径
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is 透传 errors.Is，避免调用方同时 import 两个 errors 包
func Is(err, target error) bool {
	return errors.Is(err, target)
}
