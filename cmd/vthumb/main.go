package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/John-Robertt/vthumb/internal/app/run"
	"github.com/John-Robertt/vthumb/internal/config"
	"github.com/John-Robertt/vthumb/internal/domain"
	"github.com/John-Robertt/vthumb/internal/gallery"
	"github.com/John-Robertt/vthumb/internal/infra/fsx"
	"github.com/John-Robertt/vthumb/internal/infra/video"
	"github.com/John-Robertt/vthumb/internal/logx"
)

// 退出码。
const (
	exitOK     = 0
	exitFailed = 1 // 至少一个视频处理失败（整批已跑完）
	exitConfig = 2 // 参数/配置错误，未处理任何文件
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getwd:  os.Getwd,
	}.main(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// cli 把进程级依赖收拢在一起，测试可以替换。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	getwd  func() (string, error)
	// opener 为 nil 时按 --decoder 构造。
	opener video.Opener
}

type flagValues struct {
	config       string
	format       string
	output       string
	frame        string
	name         string
	originalName bool
	maxWidth     int
	quality      int
	decoder      string
	index        bool
	report       string
	logLevel     string
}

func (c cli) main(ctx context.Context, args []string) int {
	code := exitOK
	cmd := c.newRootCmd(ctx, &code)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(c.stderr, "参数错误：%v\n\n", err)
		fmt.Fprint(c.stderr, cmd.UsageString())
		return exitConfig
	}
	return code
}

func (c cli) newRootCmd(ctx context.Context, code *int) *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:   "vthumb [flags] <input>",
		Short: "从视频中截取指定帧，批量生成缩略图",
		Long: `从视频中截取指定帧，批量生成缩略图。

<input> 可以是单个视频文件，也可以是目录（只处理目录下直接包含的
.mp4 .avi .mov .mkv .flv .wmv .mpg .mpeg 文件，不递归）。

帧指定（-n）：
  整数           第 N 帧（从 0 开始，超出范围自动截断）
  t+<时间>       按时间定位，如 t+90s、t+1m30s、t+1h2m3s

命名模板（--name）：
  {n} 原文件名  {f} 帧号（6 位补零）  {t} 时间（如 1.40s）
  {n.base} {n.digits} {n.letters} {n:<k>} {n.match(<正则>)} {n.replace(<旧>,<新>)}

stdout 是终端时只输出摘要；否则 stdout 只输出一个 JSON 报告，日志与进度走 stderr。`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = c.runCmd(ctx, cmd, args, fv)
			return nil
		},
	}
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)

	bindFlags(cmd.Flags(), &fv)
	return cmd
}

func bindFlags(f *pflag.FlagSet, fv *flagValues) {
	f.SortFlags = false
	f.StringVarP(&fv.format, "format", "f", config.DefaultFormat, "输出图片格式（扩展名）：jpg/png/gif/tif/bmp")
	f.StringVarP(&fv.output, "output", "o", config.DefaultOutput, "输出目录，不存在时自动创建")
	f.StringVarP(&fv.frame, "frame", "n", config.DefaultFrame, "帧号或 t+<时间>")
	f.StringVar(&fv.name, "name", "", "输出文件名模板（不含扩展名）")
	f.BoolVar(&fv.originalName, "original-name", false, "直接使用原文件名（与 --name 互斥）")
	f.IntVar(&fv.maxWidth, "max-width", 0, "宽度超过该值时等比缩小（0 表示保持原尺寸）")
	f.IntVar(&fv.quality, "quality", config.DefaultQuality, "JPEG 质量 1..100")
	f.StringVar(&fv.decoder, "decoder", config.DefaultDecoder, "解码后端：auto/mpeg/ffmpeg")
	f.BoolVar(&fv.index, "index", false, "在输出目录维护 index.html 缩略图索引")
	f.StringVar(&fv.report, "report", "", "把 JSON 报告另存到该路径")
	f.StringVar(&fv.config, "config", "", "配置文件路径（默认读取 ./"+config.FileName+"，不存在则忽略）")
	f.StringVar(&fv.logLevel, "log-level", config.DefaultLogLevel, "日志级别：debug/info/warn/error")
}

func (c cli) runCmd(ctx context.Context, cmd *cobra.Command, args []string, fv flagValues) int {
	cwd, err := c.getwd()
	if err != nil {
		fmt.Fprintf(c.stderr, "读取当前目录失败：%v\n", err)
		return exitConfig
	}

	changed := cmd.Flags().Changed
	cliArgs := config.CLIArgs{
		ConfigPath:      fv.config,
		ConfigSet:       changed("config"),
		Format:          fv.format,
		FormatSet:       changed("format"),
		Output:          fv.output,
		OutputSet:       changed("output"),
		Frame:           fv.frame,
		FrameSet:        changed("frame"),
		Name:            fv.name,
		NameSet:         changed("name"),
		OriginalName:    fv.originalName,
		OriginalNameSet: changed("original-name"),
		MaxWidth:        fv.maxWidth,
		MaxWidthSet:     changed("max-width"),
		Quality:         fv.quality,
		QualitySet:      changed("quality"),
		Decoder:         fv.decoder,
		DecoderSet:      changed("decoder"),
		Index:           fv.index,
		IndexSet:        changed("index"),
		Report:          fv.report,
		ReportSet:       changed("report"),
		LogLevel:        fv.logLevel,
		LogLevelSet:     changed("log-level"),
	}
	if len(args) > 0 {
		cliArgs.Input = args[0]
	}

	eff, err := config.LoadEffective(cwd, cliArgs)
	if err != nil {
		fmt.Fprintf(c.stderr, "配置错误：%v\n", err)
		if !isTTY(c.stdout) {
			c.emitReport(reportForConfigError(cwd, cliArgs, err))
		}
		return exitConfig
	}

	progress, interactive := c.pickProgressWriter()
	var (
		obs   run.Observer
		logTo = c.stderr
	)
	if interactive {
		ui := newProgressUI(progress)
		obs = ui
		// 日志经由进度条输出：先清掉进度条再写，避免两者混在同一行。
		logTo = ui
	}

	log, err := logx.New(eff.LogLevel, logTo)
	if err != nil {
		fmt.Fprintf(c.stderr, "配置错误：%v\n", err)
		return exitConfig
	}
	defer func() { _ = log.Sync() }()

	if eff.ConfigFile != "" {
		log.Debug("已读取配置文件", zap.String("path", eff.ConfigFile))
	}
	for _, w := range eff.Warnings {
		log.Warn(w)
	}

	opener := c.opener
	if opener == nil {
		opener, err = video.NewOpener(eff.Decoder, log)
		if err != nil {
			fmt.Fprintf(c.stderr, "配置错误：%v\n", err)
			return exitConfig
		}
	}

	rr := run.ExecuteWithObserver(ctx, eff, run.Deps{Opener: opener, Log: log}, obs)

	if eff.ReportPath != "" {
		if err := writeReportFile(eff.ReportPath, rr); err != nil {
			fmt.Fprintf(c.stderr, "写入报告失败：%v\n", err)
			c.emitReport(rr)
			return exitFailed
		}
	}

	c.emitReport(rr)
	if interactive {
		emitLocations(progress, eff)
	}
	if rr.Summary.Failed == 0 {
		return exitOK
	}
	return exitFailed
}

func (c cli) emitReport(rr domain.RunReport) {
	if isTTY(c.stdout) {
		fmt.Fprintf(c.stdout, "完成：processed=%d failed=%d\n", rr.Summary.Processed, rr.Summary.Failed)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Src
				if key == "" {
					key = "<run>"
				}
				fmt.Fprintf(c.stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(c.stderr, "完成：processed=%d failed=%d\n", rr.Summary.Processed, rr.Summary.Failed)
}

func reportForConfigError(cwd string, ca config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = config.ErrCodeInvalid
	}
	rr := domain.RunReport{
		Input:      ca.Input,
		Output:     ca.Output,
		Frame:      ca.Frame,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	if rr.Input == "" {
		rr.Input = cwd
	}
	rr.Finalize()
	return rr
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return &fsx.PathTypeConflictError{Path: path, Want: "file", Got: "dir"}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (c cli) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(c.stderr) {
		return c.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.ReportPath != "" {
		fmt.Fprintf(w, "report: %s\n", eff.ReportPath)
	}
	if eff.Index {
		fmt.Fprintf(w, "index: %s\n", filepath.Join(eff.Output, gallery.FileName))
	}
	fmt.Fprintf(w, "out: %s\n", eff.Output)
}
