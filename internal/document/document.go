package document

import (
	"errors"
	"path/filepath"
	"strings"
)

// 文档加载相关错误
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrLegacyFormat      = errors.New("legacy binary format cannot be parsed, convert the file to its OpenXML equivalent")
	ErrEmptyText         = errors.New("empty text")
	ErrInvalidConfig     = errors.New("invalid splitter config")
	ErrUndecodableText   = errors.New("document shows text that could not be decoded")
)

// 元数据键
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaFilename   = "filename"
	MetaFiletype   = "filetype"
	MetaPageName   = "page_name"
	MetaPageNumber = "page_number"
	MetaRowNumber  = "row_number"
	MetaCategory   = "category"
	MetaColumns    = "columns"
	MetaLinks      = "links"
)

// 元素类别
const (
	CategoryTitle         = "Title"
	CategoryNarrativeText = "NarrativeText"
	CategoryTableRow      = "TableRow"
	CategoryTable         = "Table"
)

// 文件MIME类型
const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeDOC      = "application/msword"
	MimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeXLS      = "application/vnd.ms-excel"
	MimePPTX     = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimePPT      = "application/vnd.ms-powerpoint"
	MimeMarkdown = "text/markdown"
	MimeText     = "text/plain"
)

// Document 加载器输出的文档片段
// 一个文件可以产生多个Document（如PDF的每一页、表格的每一行）
type Document struct {
	Content  string                 // 文本内容
	Metadata map[string]interface{} // 元数据，可能包含复杂类型
}

// Chunk 分块后的文本
type Chunk struct {
	Text     string                 // 分块文本
	Index    int                    // 在父文档中的位置
	Metadata map[string]interface{} // 从父文档复制的元数据
}

// Source 返回分块的来源文件路径
func (c Chunk) Source() string {
	if s, ok := c.Metadata[MetaSource].(string); ok {
		return s
	}
	return ""
}

// Loader 文档加载器接口
// 负责将一个文件转换为一组Document
type Loader interface {
	// Load 加载文件
	Load(path string) ([]Document, error)
}

// LoaderFunc 函数形式的加载器
type LoaderFunc func(path string) ([]Document, error)

// Load 实现Loader接口
func (f LoaderFunc) Load(path string) ([]Document, error) {
	return f(path)
}

// baseMetadata 元素模式加载器共用的元数据
func baseMetadata(path, filetype string) map[string]interface{} {
	return map[string]interface{}{
		MetaSource:   path,
		MetaFilename: filepath.Base(path),
		MetaFiletype: filetype,
	}
}

// normalizeExt 规范化扩展名为小写并带点号
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
