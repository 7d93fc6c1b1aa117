package run

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/John-Robertt/vthumb/internal/config"
	"github.com/John-Robertt/vthumb/internal/domain"
	"github.com/John-Robertt/vthumb/internal/gallery"
)

func touch(t *testing.T, p string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
}

func baseConfig(input, output string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Input:    input,
		Output:   output,
		Format:   "jpg",
		Frame:    domain.Absolute{Index: 0},
		FrameRaw: "0",
		Quality:  90,
		Decoder:  "auto",
		LogLevel: "info",
	}
}

func TestExecute_DirOnlyRecognizedExtensions(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "a", "b", "thumbs")
	touch(t, filepath.Join(in, "clip.mp4"))
	touch(t, filepath.Join(in, "other.AVI"))
	touch(t, filepath.Join(in, "notes.txt"))
	touch(t, filepath.Join(in, "cover.jpg"))

	op := &stubOpener{sources: map[string]*stubSource{
		"clip.mp4":  okSource(),
		"other.AVI": okSource(),
	}}
	rr := Execute(context.Background(), baseConfig(in, out), Deps{Opener: op, Log: zap.NewNop()})

	assert.Equal(t, []string{"clip.mp4", "other.AVI"}, op.opened, "只应打开可识别扩展名的文件")
	assert.Equal(t, domain.ReportSummary{Processed: 2, Failed: 0}, rr.Summary)
	require.Len(t, rr.Items, 2)

	assert.Equal(t, filepath.Join(out, "clip_f000000_0.00s.jpg"), rr.Items[0].Dst)
	assert.Equal(t, filepath.Join(out, "other_f000000_0.00s.jpg"), rr.Items[1].Dst)
	for _, it := range rr.Items {
		_, err := os.Stat(it.Dst)
		assert.NoError(t, err)
		assert.Equal(t, []string{}, it.Warnings)
	}

	// 输出目录（含多级父目录）被创建；非视频文件不产生输出。
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	for _, s := range op.sources {
		assert.True(t, s.closed, "每个打开的视频都应关闭")
	}
}

func TestExecute_NoOverwriteAcrossRuns(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "clip.mp4")
	out := filepath.Join(root, "out")
	touch(t, in)

	eff := baseConfig(in, out)
	eff.OriginalName = true

	var dsts []string
	for i := 0; i < 3; i++ {
		op := &stubOpener{sources: map[string]*stubSource{"clip.mp4": okSource()}}
		rr := Execute(context.Background(), eff, Deps{Opener: op})
		require.Len(t, rr.Items, 1)
		require.Equal(t, domain.StatusProcessed, rr.Items[0].Status, rr.Items[0].ErrorMsg)
		dsts = append(dsts, filepath.Base(rr.Items[0].Dst))
	}
	assert.Equal(t, []string{"clip.jpg", "clip_1.jpg", "clip_2.jpg"}, dsts)
}

func TestExecute_PerFileFailuresDoNotAbort(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	for _, n := range []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4"} {
		touch(t, filepath.Join(in, n))
	}

	op := &stubOpener{sources: map[string]*stubSource{
		// a.mp4 未登记：打开失败。
		"b.mp4": {meta: domain.VideoMeta{TotalFrames: 0, FPS: 25}},
		"c.mp4": {meta: domain.VideoMeta{TotalFrames: 10, FPS: 25}, readErr: errors.New("corrupt")},
		"d.mp4": okSource(),
	}}
	rr := Execute(context.Background(), baseConfig(in, filepath.Join(root, "out")), Deps{Opener: op})

	require.Len(t, rr.Items, 4)
	codes := make([]string, 0, 4)
	for _, it := range rr.Items {
		codes = append(codes, it.ErrorCode)
	}
	assert.Equal(t, []string{domain.ErrCodeOpenFailed, domain.ErrCodeNoFrames, domain.ErrCodeReadFailed, ""}, codes)
	assert.Equal(t, domain.ReportSummary{Processed: 1, Failed: 3}, rr.Summary)
	assert.Empty(t, rr.Items[0].Dst)
	assert.NotEmpty(t, rr.Items[3].Dst)
}

func TestExecute_RelativeFrameAndClamp(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	touch(t, filepath.Join(in, "long.mp4"))
	touch(t, filepath.Join(in, "short.mp4"))

	long := &stubSource{meta: domain.VideoMeta{TotalFrames: 10000, FPS: 30}}
	short := &stubSource{meta: domain.VideoMeta{TotalFrames: 100, FPS: 30}}
	op := &stubOpener{sources: map[string]*stubSource{"long.mp4": long, "short.mp4": short}}

	eff := baseConfig(in, filepath.Join(root, "out"))
	eff.Frame = domain.Relative{Expr: "1m30s"}
	eff.FrameRaw = "t+1m30s"
	rr := Execute(context.Background(), eff, Deps{Opener: op})

	require.Len(t, rr.Items, 2)
	assert.Equal(t, []int{2700}, long.reads)
	assert.Equal(t, 2700, rr.Items[0].Frame)
	assert.Equal(t, "90.00s", rr.Items[0].TimeLabel)
	assert.Equal(t, filepath.Join(root, "out", "long_f002700_90.00s.jpg"), rr.Items[0].Dst)

	assert.Equal(t, []int{99}, short.reads)
	require.Len(t, rr.Items[1].Warnings, 1)
	assert.True(t, strings.HasPrefix(rr.Items[1].Warnings[0], WarnClamped))
	assert.Equal(t, "t+1m30s", rr.Frame)
}

func TestExecute_FPSDefaultedWarning(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "clip.mp4")
	touch(t, in)

	core, logs := observer.New(zapcore.WarnLevel)
	op := &stubOpener{sources: map[string]*stubSource{
		"clip.mp4": {meta: domain.VideoMeta{TotalFrames: 100, FPS: 0}},
	}}
	eff := baseConfig(in, filepath.Join(root, "out"))
	eff.Frame = domain.Absolute{Index: 45}
	rr := Execute(context.Background(), eff, Deps{Opener: op, Log: zap.New(core)})

	require.Len(t, rr.Items, 1)
	it := rr.Items[0]
	assert.Equal(t, domain.StatusProcessed, it.Status)
	assert.Equal(t, "1.50s", it.TimeLabel)
	require.Len(t, it.Warnings, 1)
	assert.True(t, strings.HasPrefix(it.Warnings[0], "fps_defaulted"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, in, entry.ContextMap()["file"])
	assert.Equal(t, "fps_defaulted", entry.ContextMap()["warning"])
}

func TestExecute_TemplateAndFallback(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	touch(t, filepath.Join(in, "trip2024.mp4"))
	touch(t, filepath.Join(in, "beach.mp4"))

	op := &stubOpener{sources: map[string]*stubSource{"trip2024.mp4": okSource(), "beach.mp4": okSource()}}
	eff := baseConfig(in, filepath.Join(root, "out"))
	eff.NameTemplate = "{n.replace(a)}"
	rr := Execute(context.Background(), eff, Deps{Opener: op})

	require.Len(t, rr.Items, 2)
	for _, it := range rr.Items {
		assert.Equal(t, domain.StatusProcessed, it.Status, "模板失败不应让条目失败")
		assert.True(t, it.NameFallback)
		assert.True(t, strings.HasSuffix(it.Dst, "_error.jpg"), it.Dst)
	}

	op = &stubOpener{sources: map[string]*stubSource{"trip2024.mp4": okSource(), "beach.mp4": okSource()}}
	eff.NameTemplate = "{n.letters}-{n.digits}/{f}"
	rr = Execute(context.Background(), eff, Deps{Opener: op})
	require.Len(t, rr.Items, 2)
	assert.Equal(t, filepath.Join(root, "out", "beach-_000000.jpg"), rr.Items[0].Dst)
	assert.Equal(t, filepath.Join(root, "out", "trip-2024_000000.jpg"), rr.Items[1].Dst)
	assert.False(t, rr.Items[1].NameFallback)
}

func TestExecute_EncodeFailed(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "clip.mp4")
	touch(t, in)

	op := &stubOpener{sources: map[string]*stubSource{"clip.mp4": okSource()}}
	eff := baseConfig(in, filepath.Join(root, "out"))
	eff.Format = "xyz"
	rr := Execute(context.Background(), eff, Deps{Opener: op})

	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeEncodeFailed, rr.Items[0].ErrorCode)
	entries, err := os.ReadDir(filepath.Join(root, "out"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecute_OutputDirConflict(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "clip.mp4")
	touch(t, in)
	out := filepath.Join(root, "out")
	touch(t, out) // 输出路径是普通文件

	op := &stubOpener{sources: map[string]*stubSource{"clip.mp4": okSource()}}
	rr := Execute(context.Background(), baseConfig(in, out), Deps{Opener: op})

	require.Len(t, rr.Items, 1)
	assert.Equal(t, "", rr.Items[0].Src)
	assert.Equal(t, domain.ErrCodeIOFailed, rr.Items[0].ErrorCode)
	assert.Empty(t, op.opened, "输出目录不可用时不应处理任何文件")
}

func TestExecute_MissingSingleFileWithDefaultOpener(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "missing.mp4")

	rr := Execute(context.Background(), baseConfig(in, filepath.Join(root, "out")), Deps{})

	require.Len(t, rr.Items, 1)
	assert.Equal(t, in, rr.Items[0].Src)
	assert.Equal(t, domain.ErrCodeOpenFailed, rr.Items[0].ErrorCode)
	assert.Equal(t, 1, rr.Summary.Failed)
}

func TestExecute_GalleryIndex(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	touch(t, filepath.Join(in, "a.mp4"))
	touch(t, filepath.Join(in, "b.mp4"))

	op := &stubOpener{sources: map[string]*stubSource{"a.mp4": okSource()}}
	eff := baseConfig(in, out)
	eff.Index = true
	rr := Execute(context.Background(), eff, Deps{Opener: op})
	require.Equal(t, 1, rr.Summary.Processed)

	entries, err := gallery.Read(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a_f000000_0.00s.jpg", entries[0].File)
	assert.Equal(t, filepath.Join(in, "a.mp4"), entries[0].Source)
}

type recordObserver struct {
	startCalls int
	phases     []string
	items      []string
	totals     []int
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) { o.startCalls++ }

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	o.items = append(o.items, filepath.Base(res.Src))
	o.totals = append(o.totals, total)
}

func TestExecuteWithObserver_EmitsPhaseAndItemEvents(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	touch(t, filepath.Join(in, "a.mp4"))
	touch(t, filepath.Join(in, "b.mkv"))

	op := &stubOpener{sources: map[string]*stubSource{"a.mp4": okSource(), "b.mkv": okSource()}}
	eff := baseConfig(in, filepath.Join(root, "out"))
	eff.Index = true

	obs := &recordObserver{}
	_ = ExecuteWithObserver(context.Background(), eff, Deps{Opener: op}, obs)

	assert.Equal(t, 1, obs.startCalls)
	assert.Equal(t, []string{"scan", "index"}, obs.phases)
	assert.Equal(t, []string{"a.mp4", "b.mkv"}, obs.items)
	assert.Equal(t, []int{2, 2}, obs.totals)
}

func TestExecuteWithObserver_NilObserver_SameResultAsExecute(t *testing.T) {
	mk := func() (config.EffectiveConfig, Deps) {
		root := t.TempDir()
		in := filepath.Join(root, "clip.mp4")
		touch(t, in)
		return baseConfig(in, filepath.Join(root, "out")), Deps{Opener: &stubOpener{sources: map[string]*stubSource{"clip.mp4": okSource()}}}
	}

	effA, depsA := mk()
	a := Execute(context.Background(), effA, depsA)
	effB, depsB := mk()
	b := ExecuteWithObserver(context.Background(), effB, depsB, nil)

	// 时间与路径字段本身不同；对比结构与状态。
	assert.Equal(t, a.Summary, b.Summary)
	require.Len(t, b.Items, 1)
	assert.Equal(t, filepath.Base(a.Items[0].Dst), filepath.Base(b.Items[0].Dst))
	assert.Equal(t, a.Items[0].Status, b.Items[0].Status)
}
