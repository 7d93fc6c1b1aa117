package run

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"

	"github.com/John-Robertt/vthumb/internal/domain"
	"github.com/John-Robertt/vthumb/internal/infra/video"
)

// stubOpener 按文件名（不含目录）返回预设的 stubSource；未登记的文件打开失败。
type stubOpener struct {
	sources map[string]*stubSource
	opened  []string
}

func (o *stubOpener) Open(_ context.Context, path string) (video.Source, error) {
	o.opened = append(o.opened, filepath.Base(path))
	s, ok := o.sources[filepath.Base(path)]
	if !ok {
		return nil, errors.New("cannot open")
	}
	return s, nil
}

type stubSource struct {
	meta    domain.VideoMeta
	readErr error
	reads   []int
	closed  bool
}

func (s *stubSource) Meta() domain.VideoMeta { return s.meta }

func (s *stubSource) ReadFrame(_ context.Context, index int) (image.Image, error) {
	s.reads = append(s.reads, index)
	if s.readErr != nil {
		return nil, s.readErr
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 32), 128, 255})
		}
	}
	return img, nil
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

func okSource() *stubSource {
	return &stubSource{meta: domain.VideoMeta{TotalFrames: 100, FPS: 25}}
}
