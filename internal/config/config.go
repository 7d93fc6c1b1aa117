package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap/zapcore"

	"github.com/John-Robertt/vthumb/internal/domain"
	"github.com/John-Robertt/vthumb/internal/frame"
	"github.com/John-Robertt/vthumb/internal/infra/video"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeConflict 表示互斥的选项被同时指定（--name 与 --original-name）。
	ErrCodeConflict = "config_conflict"
)

const (
	// FileName 是 cwd 下自动发现的配置文件名（可选）。
	FileName = "vthumb.toml"

	DefaultFormat   = "jpg"
	DefaultOutput   = "./thumbnails"
	DefaultFrame    = "0"
	DefaultQuality  = 95
	DefaultDecoder  = video.DecoderAuto
	DefaultLogLevel = "info"
)

// CLIArgs 是命令行给出的值，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --index=false 必须能覆盖 config 里的 index = true。
type CLIArgs struct {
	Input string

	ConfigPath string
	ConfigSet  bool

	Format    string
	FormatSet bool

	Output    string
	OutputSet bool

	Frame    string
	FrameSet bool

	Name    string
	NameSet bool

	OriginalName    bool
	OriginalNameSet bool

	MaxWidth    int
	MaxWidthSet bool

	Quality    int
	QualitySet bool

	Decoder    string
	DecoderSet bool

	Index    bool
	IndexSet bool

	Report    string
	ReportSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 vthumb.toml。
//
// frame 既可以写整数（frame = 120），也可以写字符串（frame = "t+1m30s"）。
type FileConfig struct {
	Input        string `toml:"input"`
	Format       string `toml:"format"`
	Output       string `toml:"output"`
	Frame        any    `toml:"frame"`
	Name         string `toml:"name"`
	OriginalName *bool  `toml:"original_name"`
	MaxWidth     *int   `toml:"max_width"`
	Quality      *int   `toml:"quality"`
	Decoder      string `toml:"decoder"`
	Index        *bool  `toml:"index"`
	Report       string `toml:"report"`
	LogLevel     string `toml:"log_level"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Input / Output / ReportPath 均为 clean + absolute（已展开 ~）。
	Input  string
	Output string
	Format string

	Frame    domain.FrameSpec
	FrameRaw string

	// NameTemplate 为空表示使用默认命名。
	NameTemplate string
	OriginalName bool

	MaxWidth int
	Quality  int
	Decoder  string

	Index      bool
	ReportPath string
	LogLevel   string

	// ConfigFile 是实际读取的配置文件；没有读取任何文件时为空。
	ConfigFile string
	// Warnings 是不致命的配置问题（例如无法识别的帧指定，已退化为第 0 帧）。
	Warnings []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeConflict:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件（如有），并与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) 指定了 --config：必须存在
// 2) 否则尝试 <cwd>/vthumb.toml（可选，不存在不报错）
//
// 覆盖优先级（固定）：CLI > 配置文件 > 内置默认值。
// 合并之后 name 与 original_name 同时生效是致命错误（config_conflict）。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if cli.ConfigSet {
		cfgPath, err = absCleanFrom(cwdAbs, cli.ConfigPath)
		if err != nil || cfgPath == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("--config 无效：%q", cli.ConfigPath)}
		}
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}
	if !exists {
		cfgPath = ""
	}

	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	eff := EffectiveConfig{ConfigFile: cfgPath}

	// input：CLI > config；两者都没有是错误。
	input := pickString(cli.Input, strings.TrimSpace(cli.Input) != "", fc.Input, "")
	if strings.TrimSpace(input) == "" {
		return EffectiveConfig{}, invalid("缺少输入路径（命令行参数 <input> 或配置项 input）")
	}
	p, err := absCleanFrom(cwdAbs, input)
	if err != nil {
		return EffectiveConfig{}, invalid("input 无效：%v", err)
	}
	eff.Input = p

	output := pickString(cli.Output, cli.OutputSet, fc.Output, DefaultOutput)
	if strings.TrimSpace(output) == "" {
		return EffectiveConfig{}, invalid("output 不能为空")
	}
	if eff.Output, err = absCleanFrom(cwdAbs, output); err != nil {
		return EffectiveConfig{}, invalid("output 无效：%v", err)
	}

	// format 原样交给编码器；只去掉首尾空白和可选的前导 '.'。
	eff.Format = strings.TrimPrefix(strings.TrimSpace(pickString(cli.Format, cli.FormatSet, fc.Format, DefaultFormat)), ".")
	if eff.Format == "" {
		return EffectiveConfig{}, invalid("format 不能为空")
	}

	// frame：CLI > config > "0"。无法识别时退化为第 0 帧并记录警告，不致命。
	fileFrame, err := frameFromFile(fc.Frame)
	if err != nil {
		return EffectiveConfig{}, invalid("%v", err)
	}
	eff.FrameRaw = pickString(cli.Frame, cli.FrameSet, fileFrame, DefaultFrame)
	spec, err := frame.ParseSpec(eff.FrameRaw)
	if err != nil {
		spec = domain.Absolute{Index: 0}
		eff.Warnings = append(eff.Warnings, fmt.Sprintf("%v，改用第 0 帧", err))
	}
	eff.Frame = spec

	// name / original_name：各自 CLI > config，合并后再判断互斥。
	eff.NameTemplate = pickString(cli.Name, cli.NameSet, fc.Name, "")
	eff.OriginalName = pickBool(cli.OriginalName, cli.OriginalNameSet, fc.OriginalName, false)
	if eff.NameTemplate != "" && eff.OriginalName {
		return EffectiveConfig{}, &Error{Code: ErrCodeConflict, Path: cfgPath, Err: errors.New("--name 与 --original-name 不能同时使用")}
	}

	eff.MaxWidth = pickInt(cli.MaxWidth, cli.MaxWidthSet, fc.MaxWidth, 0)
	if eff.MaxWidth < 0 {
		return EffectiveConfig{}, invalid("max_width 不能为负：%d", eff.MaxWidth)
	}
	eff.Quality = pickInt(cli.Quality, cli.QualitySet, fc.Quality, DefaultQuality)
	if eff.Quality < 1 || eff.Quality > 100 {
		return EffectiveConfig{}, invalid("quality 必须在 1..100 之间：%d", eff.Quality)
	}

	eff.Decoder = strings.ToLower(strings.TrimSpace(pickString(cli.Decoder, cli.DecoderSet, fc.Decoder, DefaultDecoder)))
	if !validDecoder(eff.Decoder) {
		return EffectiveConfig{}, invalid("decoder 只能是 %s，实际是 %q", strings.Join(video.Decoders, "/"), eff.Decoder)
	}

	eff.Index = pickBool(cli.Index, cli.IndexSet, fc.Index, false)

	if report := pickString(cli.Report, cli.ReportSet, fc.Report, ""); strings.TrimSpace(report) != "" {
		if eff.ReportPath, err = absCleanFrom(cwdAbs, report); err != nil {
			return EffectiveConfig{}, invalid("report 无效：%v", err)
		}
	}

	eff.LogLevel = strings.ToLower(strings.TrimSpace(pickString(cli.LogLevel, cli.LogLevelSet, fc.LogLevel, DefaultLogLevel)))
	if _, err := zapcore.ParseLevel(eff.LogLevel); err != nil {
		return EffectiveConfig{}, invalid("log_level 无效：%q", eff.LogLevel)
	}

	return eff, nil
}

func pickString(cliVal string, cliSet bool, fileVal, def string) string {
	if cliSet {
		return cliVal
	}
	if strings.TrimSpace(fileVal) != "" {
		return fileVal
	}
	return def
}

func pickBool(cliVal, cliSet bool, fileVal *bool, def bool) bool {
	if cliSet {
		return cliVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

func pickInt(cliVal int, cliSet bool, fileVal *int, def int) int {
	if cliSet {
		return cliVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

func validDecoder(d string) bool {
	for _, x := range video.Decoders {
		if d == x {
			return true
		}
	}
	return false
}

// frameFromFile 把 toml 里的 frame（整数或字符串）统一成字符串。
func frameFromFile(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("frame 必须是整数或字符串，实际是 %T", v)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 以 ~ 开头：先展开为用户主目录
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	p, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p, nil
	}
	return filepath.Clean(filepath.Join(base, p)), nil
}

// readFileConfig 读取并解析 TOML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）；未知字段视为错误，避免拼写错误被静默忽略。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	md, err := toml.Decode(string(b), &fc)
	if err != nil {
		return FileConfig{}, true, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return FileConfig{}, true, fmt.Errorf("未知配置项：%s", strings.Join(keys, ", "))
	}
	return fc, true, nil
}
