// Package frame 把 -n/--frame 的输入解析为帧选择，并针对具体视频解析出最终帧号。
package frame

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/vthumb/internal/domain"
)

// RelativePrefix 是相对时间写法的前缀，例如 "t+1m30s"。
const RelativePrefix = "t+"

var absoluteRE = regexp.MustCompile(`^-?[0-9]+$`)

// SpecError 表示 -n 的值既不是整数也不是 t+<时间>。
type SpecError struct {
	Raw string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("无效的帧指定：%q（应为整数或 t+<时间>）", e.Raw)
}

// ParseSpec 解析帧选择。
//
// 规则：
// - "" => Absolute(0)
// - 整数（允许负号）=> Absolute；超出 int 范围时取同号的最大值，交给 Resolve 截断
// - "t+" 前缀 => Relative，时间表达式原样保存，到 Resolve 时才解析
// - 其它 => *SpecError
func ParseSpec(raw string) (domain.FrameSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.Absolute{Index: 0}, nil
	}
	if strings.HasPrefix(s, RelativePrefix) {
		return domain.Relative{Expr: strings.TrimPrefix(s, RelativePrefix)}, nil
	}
	if absoluteRE.MatchString(s) {
		n, err := strconv.Atoi(s)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, &SpecError{Raw: raw}
		}
		return domain.Absolute{Index: n}, nil
	}
	return nil, &SpecError{Raw: raw}
}
