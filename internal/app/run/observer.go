package run

import (
	"time"

	"github.com/John-Robertt/vthumb/internal/config"
	"github.com/John-Robertt/vthumb/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件都在调用 ExecuteWithObserver 的 goroutine 上按顺序发出。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个视频处理完成时调用（idx 从 1 开始）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
