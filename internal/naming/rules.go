package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"

	"github.com/John-Robertt/vthumb/internal/domain"
)

// matchTimeout 限制用户正则的单次匹配时长（regexp2 是回溯引擎）。
const matchTimeout = time.Second

// rule 是一条独立的改写规则：对整个字符串执行一次，从左到右。
type rule interface {
	apply(s string, ctx Context) (string, error)
}

// rules 的顺序就是优先级：先做字面 token 替换，再依次做各类指令。
var rules = []rule{
	tokenRule{},
	directiveRule{re: regexp.MustCompile(`\{(` + word + `+\.` + word + `+)\}`)},
	directiveRule{re: regexp.MustCompile(`\{(` + word + `+:[^}]+)\}`)},
	directiveRule{re: regexp.MustCompile(`\{(n\.match\([^}]+\))\}`)},
	directiveRule{re: regexp.MustCompile(`\{(n\.replace\([^}]+\))\}`)},
}

// word 对应 Unicode 意义上的 \w。
const word = `[\p{L}\p{N}_]`

type token struct {
	key    string
	expand func(ctx Context) string
}

var tokens = []token{
	{"{n}", func(ctx Context) string { return ctx.Basename }},
	{"{f}", func(ctx Context) string { return fmt.Sprintf("%06d", ctx.Frame) }},
	{"{t}", func(ctx Context) string { return ctx.TimeLabel }},
	{"{n.base}", func(ctx Context) string {
		base, _ := domain.SplitExt(ctx.Basename)
		return base
	}},
	{"{n.digits}", func(ctx Context) string { return keep(ctx.Basename, unicode.IsDigit) }},
	{"{n.letters}", func(ctx Context) string { return keep(ctx.Basename, unicode.IsLetter) }},
}

// tokenRule 按固定顺序做字面替换；前一个 token 的展开结果会被后面的 token 看到。
type tokenRule struct{}

func (tokenRule) apply(s string, ctx Context) (string, error) {
	for _, tk := range tokens {
		if strings.Contains(s, tk.key) {
			s = strings.ReplaceAll(s, tk.key, tk.expand(ctx))
		}
	}
	return s, nil
}

// directiveRule 用 re 找出 {command}，交给 dispatch 改写；不认识的指令原样保留。
type directiveRule struct {
	re *regexp.Regexp
}

func (r directiveRule) apply(s string, ctx Context) (string, error) {
	locs := r.re.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s, nil
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(s[last:loc[0]])
		out, err := dispatch(s[loc[2]:loc[3]], s[loc[0]:loc[1]], ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

const (
	matchPrefix   = "n.match("
	replacePrefix = "n.replace("
)

// dispatch 按前缀分派指令；whole 是包含花括号的原文，用于原样保留。
func dispatch(command, whole string, ctx Context) (string, error) {
	if strings.Contains(command, ":") {
		parts := strings.Split(command, ":")
		if parts[0] == "n" && isDigits(parts[1]) {
			return prefix(ctx.Basename, parts[1]), nil
		}
	}

	if strings.HasPrefix(command, matchPrefix) && strings.HasSuffix(command, ")") {
		return match(ctx.Basename, command[len(matchPrefix):len(command)-1])
	}

	if strings.HasPrefix(command, replacePrefix) && strings.HasSuffix(command, ")") {
		args := strings.SplitN(command[len(replacePrefix):len(command)-1], ",", 2)
		if len(args) < 2 {
			return "", fmt.Errorf("n.replace 需要两个参数：%q", whole)
		}
		return strings.Replace(ctx.Basename, args[0], args[1], 1), nil
	}

	return whole, nil
}

// prefix 返回 s 的前 k 个字符（按 rune 计）；s 不足 k 个字符时返回整个 s。
func prefix(s, k string) string {
	n, err := strconv.Atoi(asciiDigits(k))
	if err != nil {
		// 只可能是数值过大：等价于“取全部”。
		return s
	}
	rs := []rune(s)
	if n >= len(rs) {
		return s
	}
	return string(rs[:n])
}

func match(s, expr string) (string, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return "", fmt.Errorf("n.match 正则无效 %q：%w", expr, err)
	}
	re.MatchTimeout = matchTimeout

	m, err := re.FindStringMatch(s)
	if err != nil {
		return "", fmt.Errorf("n.match 匹配失败 %q：%w", expr, err)
	}
	if m == nil {
		return "", nil
	}
	return m.String(), nil
}

func keep(s string, f func(rune) bool) string {
	var b strings.Builder
	for _, r := range s {
		if f(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isDigits 接受任意 Unicode 十进制数字（如全角 "３"）。
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// asciiDigits 把 Unicode 十进制数字换成对应的 ASCII 数字。
// Nd 字符总是以 0..9 十个一组连续编码，组内偏移就是数值。
func asciiDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		zero := r
		for unicode.IsDigit(zero - 1) {
			zero--
		}
		b.WriteByte(byte('0' + (r-zero)%10))
	}
	return b.String()
}
