package video

import (
	"context"

	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// Auto 按文件头路由：MPEG-PS 先交给纯 Go 解码器，失败再退到 ffmpeg；其余格式直接走 ffmpeg。
type Auto struct {
	MPEG   Opener
	FFmpeg Opener
	Log    *zap.Logger
}

func (a Auto) Open(ctx context.Context, path string) (Source, error) {
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}

	kind, err := filetype.MatchFile(path)
	if err != nil {
		return nil, err
	}

	if kind.MIME.Value == "video/mpeg" && a.MPEG != nil {
		src, err := a.MPEG.Open(ctx, path)
		if err == nil {
			log.Debug("使用 mpeg 解码", zap.String("file", path))
			return src, nil
		}
		if a.FFmpeg == nil {
			return nil, err
		}
		log.Debug("mpeg 解码失败，改用 ffmpeg", zap.String("file", path), zap.Error(err))
	}

	if a.FFmpeg == nil {
		return nil, ErrUnsupported
	}
	log.Debug("使用 ffmpeg 解码", zap.String("file", path), zap.String("mime", kind.MIME.Value))
	return a.FFmpeg.Open(ctx, path)
}
