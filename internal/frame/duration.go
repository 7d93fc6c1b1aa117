package frame

import (
	"fmt"
	"strconv"
)

// DurationError 表示时间表达式无法解析。
type DurationError struct {
	Expr   string
	Reason string
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("无效的时间格式：%q（%s）", e.Expr, e.Reason)
}

// MaxDurationSeconds 是可接受的最大时长：999999999 天 23:59:59。
const MaxDurationSeconds = 999999999*86400 + 86399

// ParseDuration 解析 "t+" 之后的时间表达式，返回秒数。
//
// 语法：若干个 <数字><单位>，单位只能是 h/m/s；末尾不带单位的数字按秒计。
// 同一单位重复出现时，后者覆盖前者（例如 "2s5" 得到 5 秒）。
// 空串得到 0；总时长超过 MaxDurationSeconds 时报错。
func ParseDuration(expr string) (float64, error) {
	var (
		hours, minutes, seconds int64
		digits                  []byte
	)

	take := func() (int64, error) {
		v, err := strconv.ParseInt(string(digits), 10, 64)
		digits = digits[:0]
		if err != nil {
			return 0, &DurationError{Expr: expr, Reason: "数值过大"}
		}
		return v, nil
	}

	for _, r := range expr {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, byte(r))
		case r == 'h' || r == 'm' || r == 's':
			if len(digits) == 0 {
				return 0, &DurationError{Expr: expr, Reason: fmt.Sprintf("单位 %q 前缺少数字", r)}
			}
			v, err := take()
			if err != nil {
				return 0, err
			}
			switch r {
			case 'h':
				hours = v
			case 'm':
				minutes = v
			default:
				seconds = v
			}
		default:
			return 0, &DurationError{Expr: expr, Reason: fmt.Sprintf("未知单位 %q", r)}
		}
	}
	if len(digits) > 0 {
		v, err := take()
		if err != nil {
			return 0, err
		}
		seconds = v
	}

	total := float64(hours)*3600 + float64(minutes)*60 + float64(seconds)
	if total > MaxDurationSeconds {
		return 0, &DurationError{Expr: expr, Reason: "超出范围"}
	}
	return total, nil
}
