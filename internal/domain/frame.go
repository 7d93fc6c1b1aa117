package domain

import "fmt"

// FrameSpec 是用户给出的帧选择（-n/--frame），每次运行只解析一次。
//
// 只有两种形态：Absolute（帧号）与 Relative（t+<时间表达式>）。
// 接口是封闭的：包外无法新增实现。
type FrameSpec interface {
	fmt.Stringer
	isFrameSpec()
}

// Absolute 直接指定帧号；越界值在解析阶段不报错，由 Resolve 截断。
type Absolute struct {
	Index int
}

func (Absolute) isFrameSpec() {}

func (a Absolute) String() string { return fmt.Sprintf("%d", a.Index) }

// Relative 以相对时间指定帧，Expr 是去掉 "t+" 前缀后的原始表达式（如 "1m30s"）。
type Relative struct {
	Expr string
}

func (Relative) isFrameSpec() {}

func (r Relative) String() string { return "t+" + r.Expr }

// ResolvedFrame 是针对某个视频解析出的最终帧。
//
// 不变量：0 <= Index <= TotalFrames-1；TimeLabel 形如 "1.40s"。
type ResolvedFrame struct {
	Index     int
	TimeLabel string
}
