package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/vthumb/internal/domain"
)

// VideoExts 是目录输入时会被处理的扩展名（小写，含 '.'）。
var VideoExts = []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv", ".mpg", ".mpeg"}

// ListInputs 把命令行的 input 展开成待处理的视频列表。
//
// 规则：
// - input 是目录：只看直接子项（不递归），保留扩展名（大小写不敏感）在 VideoExts 中的文件，按文件名排序；
// - 其他情况（普通文件或不存在的路径）：原样返回这一个路径，不看扩展名。
//   不存在的文件会在打开时失败，作为单个条目报告，而不是在这里中止。
//
// 注意：扫描阶段只做 stat，不读文件内容。
func ListInputs(input string) ([]domain.VideoFile, error) {
	input = filepath.Clean(input)

	fi, err := os.Stat(input)
	if err != nil || !fi.IsDir() {
		return []domain.VideoFile{newVideoFile(input)}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, err
	}

	files := make([]domain.VideoFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !IsVideoExt(filepath.Ext(name)) {
			continue
		}

		path := filepath.Join(input, name)
		if !e.Type().IsRegular() {
			// 符号链接等：跟随一次，只接受最终指向普通文件的条目。
			st, err := os.Stat(path)
			if err != nil || !st.Mode().IsRegular() {
				continue
			}
		}
		files = append(files, newVideoFile(path))
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].AbsPath < files[j].AbsPath })
	return files, nil
}

// IsVideoExt 判断扩展名（含 '.'，大小写不敏感）是否属于 VideoExts。
func IsVideoExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, x := range VideoExts {
		if ext == x {
			return true
		}
	}
	return false
}

func newVideoFile(path string) domain.VideoFile {
	base, ext := domain.SplitExt(filepath.Base(path))
	return domain.VideoFile{
		AbsPath: path,
		Base:    base,
		Ext:     strings.ToLower(ext),
	}
}
