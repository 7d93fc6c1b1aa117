package fsx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/vthumb/internal/domain"
)

// UniquePath 返回一个当前不存在的路径：先试 path 本身，再依次试
// "<base>_1<ext>"、"<base>_2<ext>"……
//
// 用 Lstat 判断存在性，悬空的符号链接也算“已占用”。
// 检查与之后的写入不是原子的。
func UniquePath(path string) (string, error) {
	dir, file := filepath.Split(path)
	base, ext := domain.SplitExt(file)

	candidate := path
	for i := 1; ; i++ {
		_, err := os.Lstat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
}
