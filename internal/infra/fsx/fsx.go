// Package fsx 封装输出目录里的文件写入：先写同目录临时文件，再一步落到目标名。
//
// 缩略图不允许覆盖已有文件（WriteFileUnique / WriteFileAtomicNoOverwrite），
// index.html 与 JSON 报告这类可重建的产物整体替换（WriteFileAtomicReplace）。
package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// 测试通过替换这两个函数模拟 rename 失败、EXDEV 或不支持硬链接的文件系统。
var (
	renameFunc = os.Rename
	linkFunc   = os.Link
)

// maxUniqueAttempts 限制 WriteFileUnique 在目标被抢占时重新挑名的次数。
const maxUniqueAttempts = 16

// PathTypeConflictError 表示目标路径已被另一种类型占用（例如期望文件但实际是目录）。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CrossDeviceError 表示 rename 跨文件系统（EXDEV）。
// 临时文件总是建在目标目录内，出现它通常说明目录在写入过程中被挂载点替换了。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘 rename 失败（EXDEV）：%q -> %q：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 是带 EXDEV 标记的 os.Rename。
func Rename(src, dst string) error {
	err := renameFunc(src, dst)
	if err != nil && isEXDEV(err) {
		return &CrossDeviceError{Src: src, Dst: dst, Err: err}
	}
	return err
}

// EnsureDir 确保 dir 存在且是目录（含父目录）。
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	switch {
	case err == nil && fi.IsDir():
		return nil
	case err == nil:
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	case !os.IsNotExist(err):
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteFileUnique 把 data 写到 path 或它的第一个空闲变体（"<base>_1<ext>"……），
// 返回实际写入的路径。任何已有文件都不会被覆盖。
//
// 数据只落盘一次：临时文件写好后，挑名与落地可以重试多次。
func WriteFileUnique(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	tmp, err := stage(dir, filepath.Base(path), data)
	if err != nil {
		return "", err
	}
	defer tmp.discard()

	for attempt := 0; attempt < maxUniqueAttempts; attempt++ {
		dst, err := UniquePath(path)
		if err != nil {
			return "", err
		}
		err = tmp.commitNew(dst)
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		// 挑名之后目标被别人占用了：重新挑。
	}
	return "", fmt.Errorf("无法为 %q 找到可用文件名（重试 %d 次）", path, maxUniqueAttempts)
}

// WriteFileAtomicNoOverwrite 在 dir 下写入 name；目标已存在时返回 os.ErrExist，
// 目标是目录或特殊文件时返回 *PathTypeConflictError。
func WriteFileAtomicNoOverwrite(dir, name string, data []byte) error {
	dst := filepath.Join(filepath.Clean(dir), name)
	if err := checkFree(dst); err != nil {
		return err
	}
	tmp, err := stage(dir, name, data)
	if err != nil {
		return err
	}
	defer tmp.discard()
	return tmp.commitNew(dst)
}

// WriteFileAtomicReplace 在 dir 下写入 name，整体替换同名文件。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	tmp, err := stage(dir, name, data)
	if err != nil {
		return err
	}
	defer tmp.discard()
	return tmp.commitReplace(filepath.Join(dir, name))
}

// checkFree 判断 dst 能否作为新文件的落点。
func checkFree(dst string) error {
	fi, err := os.Lstat(dst)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	case fi.IsDir():
		return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
	case !fi.Mode().IsRegular():
		return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
	default:
		return os.ErrExist
	}
}

// staged 是已写完并 fsync 的临时文件，等待落到最终文件名。
type staged struct {
	dir  string
	path string
	done bool
}

// stage 在 dir 下创建 "."+name+".tmp-*" 并写入 data。
// 前缀带 '.'，避免在缩略图目录里被当成产物。
func stage(dir, name string, data []byte) (*staged, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, err
	}
	s := &staged{dir: dir, path: f.Name()}

	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(0o644)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.discard()
		return nil, err
	}
	return s, nil
}

// commitNew 让临时文件以 dst 出现，且绝不覆盖已有的 dst。
//
// 优先用硬链接：link 在目标已存在时原子地失败。文件系统不支持硬链接时
// 退化为“检查后 rename”，两步之间存在时间窗口。
func (s *staged) commitNew(dst string) error {
	err := linkFunc(s.path, dst)
	if err == nil {
		s.finish()
		return nil
	}
	if errors.Is(err, os.ErrExist) {
		if cerr := checkFree(dst); cerr != nil {
			return cerr
		}
		return os.ErrExist
	}

	if err := checkFree(dst); err != nil {
		return err
	}
	return s.commitReplace(dst)
}

func (s *staged) commitReplace(dst string) error {
	if err := Rename(s.path, dst); err != nil {
		return err
	}
	s.done = true
	syncDirBestEffort(s.dir)
	return nil
}

// finish 在硬链接成功后删掉临时名；失败只会留下一个带 '.' 的临时文件。
func (s *staged) finish() {
	_ = os.Remove(s.path)
	s.done = true
	syncDirBestEffort(s.dir)
}

func (s *staged) discard() {
	if !s.done {
		_ = os.Remove(s.path)
		s.done = true
	}
}

func syncDirBestEffort(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}
