package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/mpeg"

	"github.com/John-Robertt/vthumb/internal/domain"
)

// seekFallbackFPS 只用于把帧号换算成时间；元信息里的帧率不可用时采用。
const seekFallbackFPS = 30.0

// MPEG 用 github.com/gen2brain/mpeg 解码 MPEG-1 Program Stream。
type MPEG struct{}

type mpegSource struct {
	f    *os.File
	m    *mpeg.MPEG
	meta domain.VideoMeta
}

func (MPEG) Open(ctx context.Context, path string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	// *os.File 实现了 io.ReadSeeker，mpeg 才能按时间跳转。
	m, err := mpeg.New(f)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, mpeg.ErrInvalidMPEG) || errors.Is(err, mpeg.ErrInvalidHeader) {
			return nil, fmt.Errorf("%w：%v", ErrUnsupported, err)
		}
		return nil, err
	}
	if !m.HasHeaders() || m.NumVideoStreams() == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w：没有视频流", ErrUnsupported)
	}
	m.SetAudioEnabled(false)

	fps := m.Framerate()
	total := 0
	if d := m.Duration().Seconds(); d > 0 && fps > 0 {
		total = int(math.Round(d * fps))
	}

	return &mpegSource{
		f:    f,
		m:    m,
		meta: domain.VideoMeta{TotalFrames: total, FPS: fps},
	}, nil
}

func (s *mpegSource) Meta() domain.VideoMeta { return s.meta }

func (s *mpegSource) ReadFrame(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, fmt.Errorf("%w：帧号为负：%d", ErrFrameUnavailable, index)
	}

	fps := s.meta.FPS
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = seekFallbackFPS
	}
	// 目标时间往前偏半帧：精确跳转会停在第一个 Time >= 目标 的帧上，
	// 这样浮点误差不会让结果多走一帧。
	sec := (float64(index) - 0.5) / fps
	if sec < 0 {
		sec = 0
	}

	fr := s.m.SeekFrame(time.Duration(sec*float64(time.Second)), true)
	if fr == nil {
		return nil, fmt.Errorf("%w：第 %d 帧", ErrFrameUnavailable, index)
	}
	// 帧缓冲由解码器复用，必须拷贝一份。
	return imaging.Clone(fr.YCbCr()), nil
}

func (s *mpegSource) Close() error {
	return s.f.Close()
}
