package domain

import "strings"

// VideoFile 描述一个待处理的输入视频（扫描阶段只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - Base 是去掉扩展名后的文件名，命名模板里的 {n} 就是它
type VideoFile struct {
	AbsPath string
	Base    string // filename without ext
	Ext     string // ".mp4"（小写）
}

// VideoMeta 是解码器打开文件时给出的只读快照。
type VideoMeta struct {
	TotalFrames int
	FPS         float64
}

// SplitExt 把文件名拆成 base 与扩展名（含 '.'）。
//
// 开头的 '.' 不算扩展名分隔符：".bashrc" => (".bashrc", "")，"a.tar.gz" => ("a.tar", ".gz")。
func SplitExt(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || strings.Trim(name[:i], ".") == "" {
		return name, ""
	}
	return name[:i], name[i:]
}
