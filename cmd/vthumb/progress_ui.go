package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/John-Robertt/vthumb/internal/app/run"
	"github.com/John-Robertt/vthumb/internal/config"
	"github.com/John-Robertt/vthumb/internal/domain"
)

var (
	_ run.Observer = (*progressUI)(nil)
	_ io.Writer    = (*progressUI)(nil)
)

// progressUI 是交互终端下的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 同时实现 io.Writer：日志经由它输出，写之前先清掉进度条
type progressUI struct {
	w   io.Writer
	bar *progressbar.ProgressBar

	ok   int
	fail int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) Write(b []byte) (int, error) {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	return p.w.Write(b)
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	fmt.Fprintf(p.w, "[%s] vthumb\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  input: %s\n", eff.Input)
	fmt.Fprintf(p.w, "  output: %s\n", eff.Output)
	fmt.Fprintf(p.w, "  frame: %s\n", eff.FrameRaw)
	fmt.Fprintf(p.w, "  name: %s\n", namingMode(eff))
	fmt.Fprintf(p.w, "  format: %s (quality=%d, max_width=%s)\n", eff.Format, eff.Quality, formatMaxWidth(eff.MaxWidth))
	fmt.Fprintf(p.w, "  decoder: %s\n", eff.Decoder)
	fmt.Fprintf(p.w, "  index: %s\n", onOff(eff.Index))
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	switch name {
	case "scan":
		total := intField(fields, "files")
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", total, formatShortDuration(dur))
		if total > 0 {
			p.bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(p.w),
				progressbar.OptionSetDescription("生成缩略图"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionSetPredictTime(false),
				progressbar.OptionSetRenderBlankState(true),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.w) }),
			)
		}
	case "index":
		fmt.Fprintf(p.w, "索引: added=%d (%s)\n", intField(fields, "added"), formatShortDuration(dur))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	}

	// 成功只推进进度条；失败或有警告时单独打印一行，避免被进度条覆盖。
	line := formatItemLine(idx, total, res, dur)
	if res.Status == domain.StatusFailed || len(res.Warnings) > 0 || res.NameFallback {
		if p.bar != nil {
			_ = p.bar.Clear()
		}
		fmt.Fprintln(p.w, line)
	}

	if p.bar != nil {
		p.bar.Describe(fmt.Sprintf("ok=%d fail=%d", p.ok, p.fail))
		_ = p.bar.Add(1)
	}
}

func formatItemLine(idx, total int, res domain.ItemResult, dur time.Duration) string {
	name := filepath.Base(res.Src)
	switch res.Status {
	case domain.StatusFailed:
		return fmt.Sprintf("[%d/%d] %s FAIL %s: %s (%s)",
			idx, total, name, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
	default:
		var notes []string
		if res.NameFallback {
			notes = append(notes, "name_fallback")
		}
		for _, w := range res.Warnings {
			notes = append(notes, truncate(w, 90))
		}
		note := ""
		if len(notes) > 0 {
			note = " [" + strings.Join(notes, "; ") + "]"
		}
		return fmt.Sprintf("[%d/%d] %s OK -> %s frame=%d time=%s%s (%s)",
			idx, total, name, filepath.Base(res.Dst), res.Frame, res.TimeLabel, note, formatShortDuration(dur))
	}
}

func namingMode(eff config.EffectiveConfig) string {
	switch {
	case eff.OriginalName:
		return "原文件名"
	case eff.NameTemplate != "":
		return "模板 " + eff.NameTemplate
	default:
		return "默认 {n}_f{f}_{t}"
	}
}

func formatMaxWidth(w int) string {
	if w <= 0 {
		return "原尺寸"
	}
	return fmt.Sprintf("%d", w)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
