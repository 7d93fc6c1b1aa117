// Package gallery 维护输出目录下的 index.html 缩略图索引。
//
// index.html 既是给人看的页面，也是下一次运行的输入：Update 会先解析已有页面，
// 再追加本次新生成的缩略图，因此多次运行同一个输出目录时索引会累积。
package gallery

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/vthumb/internal/infra/fsx"
)

// FileName 是索引页文件名（位于输出目录下）。
const FileName = "index.html"

// Entry 是索引中的一张缩略图。
type Entry struct {
	// File 是缩略图文件名（相对输出目录，不含目录部分）。
	File string
	// Source 是生成它的视频路径。
	Source string
	// Caption 是显示在图片下方的说明。
	Caption string
}

var pageTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="zh">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:1rem;background:#fafafa}
main{display:grid;grid-template-columns:repeat(auto-fill,minmax(240px,1fr));gap:1rem}
figure.thumb{margin:0;background:#fff;padding:.5rem;border:1px solid #ddd}
figure.thumb img{width:100%;height:auto;display:block}
figcaption{font-size:.8rem;color:#555;word-break:break-all;margin-top:.25rem}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<main>
{{- range .Entries}}
<figure class="thumb" data-file="{{.File}}" data-source="{{.Source}}">
<a href="{{.Href}}"><img src="{{.Href}}" alt="{{.File}}" loading="lazy"></a>
<figcaption>{{.Caption}}</figcaption>
</figure>
{{- end}}
</main>
</body>
</html>
`))

// Read 解析 dir 下已有的 index.html；文件不存在时返回空列表。
func Read(dir string) ([]Entry, error) {
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return Parse(b)
}

// Parse 从索引页 HTML 中提取条目（figure.thumb）。
func Parse(html []byte) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析 %s 失败：%w", FileName, err)
	}

	var out []Entry
	doc.Find("figure.thumb").Each(func(_ int, s *goquery.Selection) {
		file := strings.TrimSpace(s.AttrOr("data-file", ""))
		if file == "" {
			// 手工编辑过的页面可能只剩 <img src>。
			file = fileFromHref(strings.TrimSpace(s.Find("img").AttrOr("src", "")))
		}
		if file == "" {
			return
		}
		out = append(out, Entry{
			File:    file,
			Source:  strings.TrimSpace(s.AttrOr("data-source", "")),
			Caption: strings.TrimSpace(s.Find("figcaption").Text()),
		})
	})
	return out, nil
}

// Merge 合并已有条目与新增条目：
// - 按 File 去重，新条目替换旧条目并排到后面；
// - 保留其余条目的原有顺序。
func Merge(existing, added []Entry) []Entry {
	replaced := make(map[string]bool, len(added))
	for _, e := range added {
		replaced[e.File] = true
	}

	out := make([]Entry, 0, len(existing)+len(added))
	for _, e := range existing {
		if !replaced[e.File] {
			out = append(out, e)
		}
	}
	seen := make(map[string]bool, len(added))
	for _, e := range added {
		if seen[e.File] {
			continue
		}
		seen[e.File] = true
		out = append(out, e)
	}
	return out
}

// Render 把条目渲染为完整的 HTML 页面。
func Render(title string, entries []Entry) ([]byte, error) {
	type view struct {
		Entry
		Href template.URL
	}
	views := make([]view, 0, len(entries))
	for _, e := range entries {
		views = append(views, view{Entry: e, Href: template.URL(hrefFor(e.File))})
	}

	var buf bytes.Buffer
	data := struct {
		Title   string
		Entries []view
	}{Title: title, Entries: views}
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// hrefFor 把文件名转成相对链接："./" 前缀避免 "a:b.jpg" 被当成 scheme，
// '#'、'?' 等字符按路径转义。
func hrefFor(file string) string {
	return (&url.URL{Path: "./" + file}).String()
}

// fileFromHref 是 hrefFor 的逆操作；无法解析时原样返回。
func fileFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return href
	}
	return strings.TrimPrefix(u.Path, "./")
}

// Update 读取 dir 下已有的索引，去掉图片已不存在的条目，追加 added，然后原子写回。
func Update(dir string, added []Entry) error {
	existing, err := Read(dir)
	if err != nil {
		return err
	}

	kept := existing[:0]
	for _, e := range existing {
		if present(dir, e.File) {
			kept = append(kept, e)
		}
	}

	entries := Merge(kept, added)
	b, err := Render(filepath.Base(dir), entries)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(dir, FileName, b)
}

// present 只认 dir 下的直接子文件；带路径分隔符的名字一律视为不存在。
func present(dir, file string) bool {
	if file == "" || strings.ContainsRune(file, '/') || strings.ContainsRune(file, filepath.Separator) {
		return false
	}
	fi, err := os.Stat(filepath.Join(dir, file))
	return err == nil && fi.Mode().IsRegular()
}
