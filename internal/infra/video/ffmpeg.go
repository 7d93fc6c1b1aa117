package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/John-Robertt/vthumb/internal/domain"
)

// Runner 执行外部命令并返回 stdout；测试里可替换。
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg 通过系统的 ffprobe / ffmpeg 读取视频。
//
// 零值可用：程序名默认 "ffprobe" / "ffmpeg"（从 PATH 查找），Run 默认真正执行子进程。
type FFmpeg struct {
	FFprobePath string
	FFmpegPath  string
	Run         Runner
}

type ffmpegSource struct {
	path string
	meta domain.VideoMeta
	bin  string
	run  Runner
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s：%w", name, err)
		}
		return nil, fmt.Errorf("%s：%w：%s", name, err, msg)
	}
	return out, nil
}

func (f FFmpeg) runner() Runner {
	if f.Run != nil {
		return f.Run
	}
	return execRunner
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// probeOutput 是 `ffprobe -of json` 输出里用到的部分。
type probeOutput struct {
	Streams []struct {
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (f FFmpeg) Open(ctx context.Context, path string) (Source, error) {
	// 先确认文件可读：ffprobe 的报错对“文件不存在”不够直观。
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w：%q 是目录", ErrUnsupported, path)
	}

	run := f.runner()
	out, err := run(ctx, orDefault(f.FFprobePath, "ffprobe"),
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames,avg_frame_rate,r_frame_rate,duration:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, err
	}

	meta, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	return &ffmpegSource{
		path: path,
		meta: meta,
		bin:  orDefault(f.FFmpegPath, "ffmpeg"),
		run:  run,
	}, nil
}

func parseProbe(b []byte) (domain.VideoMeta, error) {
	var p probeOutput
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.VideoMeta{}, fmt.Errorf("解析 ffprobe 输出失败：%w", err)
	}
	if len(p.Streams) == 0 {
		return domain.VideoMeta{}, fmt.Errorf("%w：没有视频流", ErrUnsupported)
	}
	st := p.Streams[0]

	fps := parseRate(st.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(st.RFrameRate)
	}

	total, err := strconv.Atoi(strings.TrimSpace(st.NbFrames))
	if err != nil || total <= 0 {
		// 很多容器（mkv/webm）不写 nb_frames：用时长 × 帧率估算。
		total = 0
		d := parseFloat(st.Duration)
		if d <= 0 {
			d = parseFloat(p.Format.Duration)
		}
		if d > 0 && fps > 0 {
			total = int(math.Round(d * fps))
		}
	}
	return domain.VideoMeta{TotalFrames: total, FPS: fps}, nil
}

// parseRate 解析 "30000/1001" 或 "25" 形式的帧率；无法解析时返回 0。
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (s *ffmpegSource) Meta() domain.VideoMeta { return s.meta }

func (s *ffmpegSource) ReadFrame(ctx context.Context, index int) (image.Image, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w：帧号为负：%d", ErrFrameUnavailable, index)
	}
	out, err := s.run(ctx, s.bin,
		"-v", "error",
		"-i", s.path,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	)
	if err != nil {
		return nil, fmt.Errorf("%w：%v", ErrFrameUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w：第 %d 帧", ErrFrameUnavailable, index)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w：%v", ErrFrameUnavailable, err)
	}
	return img, nil
}

func (s *ffmpegSource) Close() error { return nil }
