package domain

import (
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

const (
	ErrCodeOpenFailed   = "open_failed"
	ErrCodeNoFrames     = "no_frames"
	ErrCodeReadFailed   = "read_failed"
	ErrCodeEncodeFailed = "encode_failed"
	ErrCodeWriteFailed  = "write_failed"
	ErrCodeIOFailed     = "io_failed"
)

// RunReport 是对外稳定输出（stdout JSON / --report 文件）的结构。
type RunReport struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Frame  string `json:"frame"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ItemResult 对应一个输入视频的处理结果。
type ItemResult struct {
	Src string `json:"src"`
	Dst string `json:"dst"`

	Frame     int    `json:"frame"`
	TimeLabel string `json:"time"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// NameFallback 为 true 表示命名模板失败，文件名退化为 "<name>_error"。
	NameFallback bool     `json:"name_fallback"`
	Warnings     []string `json:"warnings"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 src 字典序；src=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Src
		b := r.Items[j].Src
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for i := range r.Items {
		if r.Items[i].Warnings == nil {
			r.Items[i].Warnings = []string{}
		}
		switch r.Items[i].Status {
		case StatusProcessed:
			s.Processed++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}
