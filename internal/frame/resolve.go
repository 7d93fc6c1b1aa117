package frame

import (
	"errors"
	"fmt"
	"math"

	"github.com/John-Robertt/vthumb/internal/domain"
)

// DefaultFPS 在元数据给出的 FPS 不可用（<=0、NaN、Inf）时替代使用。
const DefaultFPS = 30.0

// ErrNoFrames 表示视频总帧数为 0：该文件无法继续处理。
var ErrNoFrames = errors.New("视频总帧数为 0")

const (
	WarnFPSDefaulted = "fps_defaulted"
	WarnBadTime      = "bad_time"
)

// Warning 是解析过程中的非致命问题（记录日志后继续处理）。
type Warning struct {
	Code string
	Msg  string
}

func (w Warning) String() string { return w.Code + ": " + w.Msg }

// Resolution 是 Resolve 的完整结果。
type Resolution struct {
	Frame domain.ResolvedFrame
	// FPS 是实际使用的帧率（可能已被替换为 DefaultFPS）。
	FPS float64
	// Clamped 表示请求的帧号超出 [0, TotalFrames-1]，已被截断。
	Clamped  bool
	Warnings []Warning
}

// Resolve 针对某个视频的元数据，把帧选择解析为合法帧号与时间标签。
//
// 越界的帧号静默截断到 [0, TotalFrames-1]（只在 Resolution.Clamped 上体现）；
// 时间表达式解析失败时回退到第 0 帧并给出 WarnBadTime。
func Resolve(spec domain.FrameSpec, meta domain.VideoMeta) (Resolution, error) {
	if meta.TotalFrames <= 0 {
		return Resolution{}, ErrNoFrames
	}

	var res Resolution

	fps := meta.FPS
	if !(fps > 0) || math.IsInf(fps, 1) {
		res.Warnings = append(res.Warnings, Warning{
			Code: WarnFPSDefaulted,
			Msg:  fmt.Sprintf("FPS 信息不正确（%v），使用默认的 %g FPS", meta.FPS, DefaultFPS),
		})
		fps = DefaultFPS
	}
	res.FPS = fps

	want := 0
	switch s := spec.(type) {
	case domain.Absolute:
		want = s.Index
	case domain.Relative:
		sec, err := ParseDuration(s.Expr)
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Code: WarnBadTime, Msg: err.Error() + "，使用第 0 帧"})
		} else {
			want = framesAt(sec, fps)
		}
	}

	idx := clamp(want, 0, meta.TotalFrames-1)
	res.Clamped = idx != want
	res.Frame = domain.ResolvedFrame{
		Index:     idx,
		TimeLabel: TimeLabel(idx, fps),
	}
	return res, nil
}

// TimeLabel 把帧号换算为经过的秒数，格式为两位小数加 "s"（如 "1.40s"）。
func TimeLabel(index int, fps float64) string {
	return fmt.Sprintf("%.2fs", float64(index)/fps)
}

// framesAt 把秒数换算为帧号（截断取整），溢出时饱和到 math.MaxInt。
func framesAt(sec, fps float64) int {
	f := sec * fps
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
