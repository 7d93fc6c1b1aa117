// Package imgx 把解码出的视频帧编码为缩略图字节。
package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultQuality 是 JPEG 默认质量：体积与画质之间比较均衡。
const DefaultQuality = 95

// ErrEmptyImage 表示帧为空或尺寸无效。
var ErrEmptyImage = errors.New("图片尺寸无效")

// UnsupportedFormatError 表示输出格式不被编码器支持。
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("不支持的输出格式：%q（支持 jpg/jpeg/png/gif/tif/tiff/bmp）", e.Format)
}

// Options 控制编码细节。零值表示“原尺寸 + 默认质量”。
type Options struct {
	// MaxWidth > 0 时，宽度超过它的帧会被等比缩小到 MaxWidth。
	MaxWidth int
	// Quality 仅对 JPEG 生效，取值 1..100；0 表示 DefaultQuality。
	Quality int
}

// Supported 判断 format（不带点的扩展名，大小写不敏感）能否编码。
func Supported(format string) bool {
	_, err := imaging.FormatFromExtension(format)
	return err == nil
}

// Encode 按 format 编码 img，返回完整文件内容。
func Encode(img image.Image, format string, opts Options) ([]byte, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}

	f, err := imaging.FormatFromExtension(format)
	if err != nil {
		return nil, &UnsupportedFormatError{Format: format}
	}

	if opts.MaxWidth > 0 && b.Dx() > opts.MaxWidth {
		// 高度传 0：保持宽高比。
		img = imaging.Resize(img, opts.MaxWidth, 0, imaging.Lanczos)
	}

	q := opts.Quality
	if q <= 0 {
		q = DefaultQuality
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, f, imaging.JPEGQuality(q)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
