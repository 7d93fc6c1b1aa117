package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"

	"github.com/John-Robertt/vthumb/internal/domain"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, FileName)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}
	return p
}

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Input: "videos"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Input != filepath.Join(cwd, "videos") {
		t.Fatalf("input 应相对 cwd 取绝对路径，实际：%q", eff.Input)
	}
	if eff.Output != filepath.Join(cwd, "thumbnails") {
		t.Fatalf("output 默认值不符合预期：%q", eff.Output)
	}
	if eff.Format != "jpg" || eff.FrameRaw != "0" || eff.Quality != DefaultQuality || eff.Decoder != "auto" || eff.LogLevel != "info" {
		t.Fatalf("默认值不符合预期：%+v", eff)
	}
	if eff.Frame != (domain.Absolute{Index: 0}) {
		t.Fatalf("默认帧应为 Absolute(0)，实际：%#v", eff.Frame)
	}
	if eff.ConfigFile != "" || eff.Index || eff.OriginalName || eff.NameTemplate != "" || eff.ReportPath != "" {
		t.Fatalf("不应有额外配置：%+v", eff)
	}
}

func TestLoadEffective_MissingInput(t *testing.T) {
	_, err := LoadEffective(t.TempDir(), CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %s，实际：%v", ErrCodeInvalid, err)
	}
}

func TestLoadEffective_NameAndOriginalNameConflict(t *testing.T) {
	cwd := t.TempDir()
	_, err := LoadEffective(cwd, CLIArgs{
		Input:           "a.mp4",
		Name:            "{n}",
		NameSet:         true,
		OriginalName:    true,
		OriginalNameSet: true,
	})
	if Code(err) != ErrCodeConflict {
		t.Fatalf("期望 %s，实际：%v", ErrCodeConflict, err)
	}
}

func TestLoadEffective_ConflictAcrossCLIAndFile(t *testing.T) {
	cwd := t.TempDir()
	writeConfig(t, cwd, "original_name = true\n")

	_, err := LoadEffective(cwd, CLIArgs{Input: "a.mp4", Name: "{n}", NameSet: true})
	if Code(err) != ErrCodeConflict {
		t.Fatalf("期望 %s，实际：%v", ErrCodeConflict, err)
	}

	// CLI 显式 --original-name=false 可以覆盖配置文件，冲突消失。
	eff, err := LoadEffective(cwd, CLIArgs{Input: "a.mp4", Name: "{n}", NameSet: true, OriginalNameSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.OriginalName || eff.NameTemplate != "{n}" {
		t.Fatalf("合并结果不符合预期：%+v", eff)
	}
}

func TestLoadEffective_FileThenCLIOverride(t *testing.T) {
	cwd := t.TempDir()
	cfg := writeConfig(t, cwd, strings.Join([]string{
		`input = "in"`,
		`output = "out"`,
		`format = ".png"`,
		`frame = 120`,
		`max_width = 320`,
		`quality = 80`,
		`decoder = "ffmpeg"`,
		`index = true`,
		`report = "report.json"`,
		`log_level = "debug"`,
	}, "\n"))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFile != cfg {
		t.Fatalf("ConfigFile 不符合预期：%q", eff.ConfigFile)
	}
	if eff.Input != filepath.Join(cwd, "in") || eff.Output != filepath.Join(cwd, "out") {
		t.Fatalf("路径不符合预期：%+v", eff)
	}
	if eff.Format != "png" || eff.FrameRaw != "120" || eff.Frame != (domain.Absolute{Index: 120}) {
		t.Fatalf("format/frame 不符合预期：%+v", eff)
	}
	if eff.MaxWidth != 320 || eff.Quality != 80 || eff.Decoder != "ffmpeg" || !eff.Index || eff.LogLevel != "debug" {
		t.Fatalf("配置文件字段未生效：%+v", eff)
	}
	if eff.ReportPath != filepath.Join(cwd, "report.json") {
		t.Fatalf("report 路径不符合预期：%q", eff.ReportPath)
	}

	eff, err = LoadEffective(cwd, CLIArgs{
		Input:      "other.mp4",
		Frame:      "t+1m30s",
		FrameSet:   true,
		Index:      false,
		IndexSet:   true,
		Quality:    50,
		QualitySet: true,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Input != filepath.Join(cwd, "other.mp4") {
		t.Fatalf("CLI input 应覆盖配置：%q", eff.Input)
	}
	if eff.Frame != (domain.Relative{Expr: "1m30s"}) {
		t.Fatalf("CLI frame 应覆盖配置：%#v", eff.Frame)
	}
	if eff.Index || eff.Quality != 50 {
		t.Fatalf("CLI 显式值应覆盖配置：%+v", eff)
	}
}

func TestLoadEffective_FrameStringInFile(t *testing.T) {
	cwd := t.TempDir()
	writeConfig(t, cwd, `frame = "t+10s"`)

	eff, err := LoadEffective(cwd, CLIArgs{Input: "a.mp4"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Frame != (domain.Relative{Expr: "10s"}) {
		t.Fatalf("frame 不符合预期：%#v", eff.Frame)
	}
}

func TestLoadEffective_BadFrameDegradesWithWarning(t *testing.T) {
	eff, err := LoadEffective(t.TempDir(), CLIArgs{Input: "a.mp4", Frame: "middle", FrameSet: true})
	if err != nil {
		t.Fatalf("无法识别的帧指定不应致命：%v", err)
	}
	if eff.Frame != (domain.Absolute{Index: 0}) {
		t.Fatalf("应退化为第 0 帧：%#v", eff.Frame)
	}
	if len(eff.Warnings) != 1 || !strings.Contains(eff.Warnings[0], "middle") {
		t.Fatalf("应记录一条警告：%v", eff.Warnings)
	}
}

func TestLoadEffective_InvalidValues(t *testing.T) {
	cwd := t.TempDir()
	cases := []CLIArgs{
		{Input: "a.mp4", Quality: 0, QualitySet: true},
		{Input: "a.mp4", Quality: 101, QualitySet: true},
		{Input: "a.mp4", MaxWidth: -1, MaxWidthSet: true},
		{Input: "a.mp4", Decoder: "gstreamer", DecoderSet: true},
		{Input: "a.mp4", LogLevel: "verbose", LogLevelSet: true},
		{Input: "a.mp4", Format: " ", FormatSet: true},
		{Input: "a.mp4", Output: "", OutputSet: true},
	}
	for i, cli := range cases {
		_, err := LoadEffective(cwd, cli)
		if Code(err) != ErrCodeInvalid {
			t.Fatalf("case %d：期望 %s，实际：%v", i, ErrCodeInvalid, err)
		}
	}
}

func TestLoadEffective_BadFile(t *testing.T) {
	cwd := t.TempDir()

	writeConfig(t, cwd, "format = [")
	if _, err := LoadEffective(cwd, CLIArgs{Input: "a.mp4"}); Code(err) != ErrCodeInvalid {
		t.Fatalf("语法错误期望 %s，实际：%v", ErrCodeInvalid, err)
	}

	writeConfig(t, cwd, "fromat = \"png\"")
	_, err := LoadEffective(cwd, CLIArgs{Input: "a.mp4"})
	if Code(err) != ErrCodeInvalid || !strings.Contains(err.Error(), "fromat") {
		t.Fatalf("未知字段期望 %s，实际：%v", ErrCodeInvalid, err)
	}

	writeConfig(t, cwd, "frame = 1.5")
	if _, err := LoadEffective(cwd, CLIArgs{Input: "a.mp4"}); Code(err) != ErrCodeInvalid {
		t.Fatalf("frame 类型错误期望 %s，实际：%v", ErrCodeInvalid, err)
	}
}

func TestLoadEffective_ExplicitConfigMustExist(t *testing.T) {
	cwd := t.TempDir()
	_, err := LoadEffective(cwd, CLIArgs{Input: "a.mp4", ConfigPath: "missing.toml", ConfigSet: true})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %s，实际：%v", ErrCodeNotFound, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("期望可用 errors.Is 识别 ErrNotExist：%v", err)
	}

	other := filepath.Join(cwd, "other.toml")
	if err := os.WriteFile(other, []byte(`format = "png"`), 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}
	eff, err := LoadEffective(cwd, CLIArgs{Input: "a.mp4", ConfigPath: other, ConfigSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Format != "png" || eff.ConfigFile != other {
		t.Fatalf("显式配置未生效：%+v", eff)
	}
}

func TestLoadEffective_TildeExpansion(t *testing.T) {
	home, err := homedir.Dir()
	if err != nil {
		t.Skipf("无法确定主目录：%v", err)
	}
	eff, err := LoadEffective(t.TempDir(), CLIArgs{Input: "a.mp4", Output: "~/thumbs", OutputSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Output != filepath.Join(home, "thumbs") {
		t.Fatalf("~ 未展开：%q", eff.Output)
	}
}
