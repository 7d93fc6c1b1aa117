// Package naming 根据输出文件名模板与单个文件的上下文生成文件名（不含扩展名）。
//
// 模板语法：
//
//	{n}            原文件名（已去掉扩展名）
//	{f}            帧号，6 位补零
//	{t}            时间标签，如 "1.40s"
//	{n.base}       {n} 再去掉一次扩展名
//	{n.digits}     {n} 中的全部数字
//	{n.letters}    {n} 中的全部字母
//	{n:<k>}        {n} 的前 k 个字符
//	{n.match(re)}  re 在 {n} 上的第一个匹配（无匹配则为空）
//	{n.replace(a,b)} 把 {n} 中第一个 a 替换为 b（字面替换）
//
// 字面 token 先于指令替换，因此指令参数里可以引用 {n}/{f}/{t}。
// 指令参数中不能出现 '}'。
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var errPanic = errors.New("命名模板处理异常")

// Template 是输出文件名模板；无状态，每个文件单独求值。
type Template string

// Context 是单个文件可用于命名的信息。
type Context struct {
	Basename  string
	Frame     int
	TimeLabel string
}

// Result 是一次渲染的结果。
//
// Fallback 为 true 时，Name 是退化名 "<Basename>_error"，Err 给出原因；
// 调用方据此区分“模板正常产出”与“模板失败后的兜底”。
type Result struct {
	Name     string
	Fallback bool
	Err      error
}

// Render 渲染模板。它不会 panic，也不会返回 error：任何失败都体现为 Fallback。
func Render(tmpl Template, ctx Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = fallback(ctx, fmt.Errorf("%w：%v", errPanic, r))
		}
	}()

	s := string(tmpl)
	for _, r := range rules {
		out, err := r.apply(s, ctx)
		if err != nil {
			return fallback(ctx, err)
		}
		s = out
	}
	return Result{Name: s}
}

func fallback(ctx Context, err error) Result {
	return Result{
		Name:     ctx.Basename + "_error",
		Fallback: true,
		Err:      err,
	}
}

// Default 是未指定模板时的命名："<n>_f<6位帧号>_<时间>"。
func Default(ctx Context) string {
	return fmt.Sprintf("%s_f%06d_%s", ctx.Basename, ctx.Frame, ctx.TimeLabel)
}

// Original 直接沿用原文件名（--original-name）。
func Original(ctx Context) string {
	return ctx.Basename
}

// SafeFilename 把路径分隔符与 NUL 替换为 '_'，保证结果只是一个文件名，不会逃出输出目录。
func SafeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == filepath.Separator || r == 0 {
			return '_'
		}
		return r
	}, name)
}
