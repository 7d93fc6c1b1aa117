package run

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/vthumb/internal/config"
	"github.com/John-Robertt/vthumb/internal/domain"
	"github.com/John-Robertt/vthumb/internal/frame"
	"github.com/John-Robertt/vthumb/internal/gallery"
	"github.com/John-Robertt/vthumb/internal/infra/fsx"
	"github.com/John-Robertt/vthumb/internal/infra/imgx"
	"github.com/John-Robertt/vthumb/internal/infra/video"
	"github.com/John-Robertt/vthumb/internal/naming"
	"github.com/John-Robertt/vthumb/internal/scan"
)

// WarnClamped 标记请求的帧号超出视频范围、已被截断。
// 截断本身不打日志（info 级别下静默），只记录在报告里。
const WarnClamped = "clamped"

// Deps 是 Execute 依赖的外部协作者。
type Deps struct {
	Opener video.Opener
	Log    *zap.Logger
}

// Execute 执行一次批处理，并返回对外稳定的 RunReport。
// 单个视频的失败只体现在对应 item 上，不会中止整批。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	rr := domain.RunReport{
		Input:     eff.Input,
		Output:    eff.Output,
		Frame:     eff.FrameRaw,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 16),
	}

	// 输出目录必须在处理任何文件之前就绪。
	if err := fsx.EnsureDir(eff.Output); err != nil {
		log.Error("无法创建输出目录", zap.String("dir", eff.Output), zap.Error(err))
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("无法创建输出目录 %q：%v", eff.Output, err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	scanStarted := time.Now()
	files, err := scan.ListInputs(eff.Input)
	if err != nil {
		log.Error("扫描输入失败", zap.String("input", eff.Input), zap.Error(err))
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))
	}
	log.Debug("扫描完成", zap.String("input", eff.Input), zap.Int("files", len(files)))

	opener := deps.Opener
	if opener == nil {
		opener, err = video.NewOpener(eff.Decoder, log)
		if err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeOpenFailed, err.Error()))
			rr.FinishedAt = time.Now().UTC()
			rr.Finalize()
			return rr
		}
	}

	opts := imgx.Options{MaxWidth: eff.MaxWidth, Quality: eff.Quality}
	var thumbs []gallery.Entry

	// 串行处理：一次只打开一个视频、只读一帧。
	for i, f := range files {
		oneStarted := time.Now()
		res := processOne(ctx, eff, opener, opts, log.With(zap.String("file", f.AbsPath)), f)
		rr.Items = append(rr.Items, res)

		if res.Status == domain.StatusProcessed {
			thumbs = append(thumbs, gallery.Entry{
				File:    filepath.Base(res.Dst),
				Source:  res.Src,
				Caption: fmt.Sprintf("%s · f%d · %s", f.Base, res.Frame, res.TimeLabel),
			})
		}
		if obs != nil {
			obs.OnItemDone(i+1, len(files), res, time.Since(oneStarted))
		}
	}

	if eff.Index {
		indexStarted := time.Now()
		// 索引失败只记日志：缩略图本身已经写好了。
		if err := gallery.Update(eff.Output, thumbs); err != nil {
			log.Warn("更新索引页失败", zap.String("dir", eff.Output), zap.Error(err))
		} else if obs != nil {
			obs.OnPhaseDone("index", map[string]any{"added": len(thumbs)}, time.Since(indexStarted))
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func processOne(ctx context.Context, eff config.EffectiveConfig, opener video.Opener, opts imgx.Options, log *zap.Logger, f domain.VideoFile) domain.ItemResult {
	item := domain.ItemResult{
		Src:    f.AbsPath,
		Status: domain.StatusProcessed, // 失败时覆盖
	}

	src, err := opener.Open(ctx, f.AbsPath)
	if err != nil {
		log.Error("无法打开视频，跳过", zap.Error(err))
		fail(&item, domain.ErrCodeOpenFailed, fmt.Sprintf("无法打开视频：%v", err))
		return item
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Debug("关闭视频失败", zap.Error(err))
		}
	}()

	meta := src.Meta()
	res, err := frame.Resolve(eff.Frame, meta)
	if err != nil {
		log.Error("视频没有可读的帧，跳过", zap.Int("total_frames", meta.TotalFrames), zap.Error(err))
		fail(&item, domain.ErrCodeNoFrames, fmt.Sprintf("视频没有可读的帧（total_frames=%d）", meta.TotalFrames))
		return item
	}
	item.Frame = res.Frame.Index
	item.TimeLabel = res.Frame.TimeLabel

	for _, w := range res.Warnings {
		log.Warn(w.Msg, zap.String("warning", w.Code))
		item.Warnings = append(item.Warnings, w.String())
	}
	if res.Clamped {
		log.Debug("帧号超出范围，已截断", zap.Int("frame", res.Frame.Index), zap.Int("total_frames", meta.TotalFrames))
		item.Warnings = append(item.Warnings, fmt.Sprintf("%s: 帧号超出范围，已截断为 %d", WarnClamped, res.Frame.Index))
	}

	img, err := src.ReadFrame(ctx, res.Frame.Index)
	if err != nil {
		log.Error("无法读取帧，跳过", zap.Int("frame", res.Frame.Index), zap.Error(err))
		fail(&item, domain.ErrCodeReadFailed, fmt.Sprintf("无法读取第 %d 帧：%v", res.Frame.Index, err))
		return item
	}

	name, fallback := outputName(eff, f, res.Frame, log)
	item.NameFallback = fallback

	data, err := imgx.Encode(img, eff.Format, opts)
	if err != nil {
		log.Error("编码失败，跳过", zap.String("format", eff.Format), zap.Error(err))
		fail(&item, domain.ErrCodeEncodeFailed, fmt.Sprintf("编码为 %s 失败：%v", eff.Format, err))
		return item
	}

	dst, err := fsx.WriteFileUnique(filepath.Join(eff.Output, name+"."+eff.Format), data)
	if err != nil {
		log.Error("写入缩略图失败", zap.Error(err))
		fail(&item, domain.ErrCodeWriteFailed, fmt.Sprintf("写入缩略图失败：%v", err))
		return item
	}
	item.Dst = dst

	log.Info("已生成缩略图", zap.String("dst", dst), zap.Int("frame", res.Frame.Index), zap.String("time", res.Frame.TimeLabel))
	return item
}

// outputName 生成不含扩展名的输出文件名，并保证它只是一个文件名。
func outputName(eff config.EffectiveConfig, f domain.VideoFile, rf domain.ResolvedFrame, log *zap.Logger) (string, bool) {
	nctx := naming.Context{Basename: f.Base, Frame: rf.Index, TimeLabel: rf.TimeLabel}

	var (
		name     string
		fallback bool
	)
	switch {
	case eff.OriginalName:
		name = naming.Original(nctx)
	case eff.NameTemplate != "":
		r := naming.Render(naming.Template(eff.NameTemplate), nctx)
		if r.Fallback {
			log.Warn("命名模板处理失败，使用退化文件名", zap.String("template", eff.NameTemplate), zap.String("name", r.Name), zap.Error(r.Err))
		}
		name, fallback = r.Name, r.Fallback
	default:
		name = naming.Default(nctx)
	}
	return naming.SafeFilename(name), fallback
}

func fail(item *domain.ItemResult, code, msg string) {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}
