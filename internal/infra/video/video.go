// Package video 提供读取视频元信息与单帧画面的解码后端。
//
// 批处理只依赖 Opener / Source 两个接口；具体后端：
//   - MPEG：纯 Go 的 MPEG-1 Program Stream 解码（.mpg/.mpeg），不依赖外部程序；
//   - FFmpeg：调用系统 ffprobe/ffmpeg，覆盖其余容器格式；
//   - Auto：按文件头识别类型后在两者之间路由。
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/John-Robertt/vthumb/internal/domain"
)

var (
	// ErrUnsupported 表示后端无法识别该文件（不是它能处理的格式）。
	ErrUnsupported = errors.New("不支持的视频格式")
	// ErrFrameUnavailable 表示请求的帧读不出来。
	ErrFrameUnavailable = errors.New("读取帧失败")
)

// Source 是一个已打开的视频。
type Source interface {
	// Meta 返回总帧数与帧率；帧率可能为 0 或非有限值，由调用方兜底。
	Meta() domain.VideoMeta
	// ReadFrame 定位并解码第 index 帧（0 起）。
	ReadFrame(ctx context.Context, index int) (image.Image, error)
	Close() error
}

// Opener 打开视频文件。
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// 解码后端名（--decoder）。
const (
	DecoderAuto   = "auto"
	DecoderMPEG   = "mpeg"
	DecoderFFmpeg = "ffmpeg"
)

// Decoders 是合法的后端名列表。
var Decoders = []string{DecoderAuto, DecoderMPEG, DecoderFFmpeg}

// NewOpener 按后端名构造 Opener。
func NewOpener(name string, log *zap.Logger) (Opener, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DecoderAuto:
		return Auto{MPEG: MPEG{}, FFmpeg: FFmpeg{}, Log: log}, nil
	case DecoderMPEG:
		return MPEG{}, nil
	case DecoderFFmpeg:
		return FFmpeg{}, nil
	default:
		return nil, fmt.Errorf("未知的解码后端：%q（可选：%s）", name, strings.Join(Decoders, "/"))
	}
}
