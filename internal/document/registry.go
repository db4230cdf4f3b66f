package document

import (
	"path/filepath"
	"sort"
	"sync"
)

// LoaderFactory 加载器工厂函数
type LoaderFactory func() Loader

// Registry 扩展名到加载器工厂的注册表
// 新格式通过Register加入，导入流程无需修改
type Registry struct {
	mu        sync.RWMutex
	factories map[string]LoaderFactory
}

// NewRegistry 创建一个空注册表
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]LoaderFactory)}
}

// NewDefaultRegistry 创建包含默认格式的注册表
// textFormats为true时额外注册 .md/.markdown/.txt
func NewDefaultRegistry(textFormats bool) *Registry {
	r := NewRegistry()
	r.Register(".pdf", func() Loader { return NewPDFLoader() })
	r.Register(".docx", func() Loader { return NewWordLoader() })
	r.Register(".doc", func() Loader { return NewWordLoader() })
	r.Register(".xlsx", func() Loader { return NewExcelLoader() })
	r.Register(".xls", func() Loader { return NewExcelLoader() })
	r.Register(".pptx", func() Loader { return NewPowerPointLoader() })
	r.Register(".ppt", func() Loader { return NewPowerPointLoader() })

	if textFormats {
		r.Register(".md", func() Loader { return NewMarkdownLoader() })
		r.Register(".markdown", func() Loader { return NewMarkdownLoader() })
		r.Register(".txt", func() Loader { return NewPlainTextLoader() })
	}
	return r
}

// Register 注册扩展名对应的加载器，已存在时覆盖
func (r *Registry) Register(ext string, factory LoaderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalizeExt(ext)] = factory
}

// Lookup 根据文件扩展名查找加载器，扩展名比较不区分大小写
func (r *Registry) Lookup(path string) (Loader, bool) {
	ext := normalizeExt(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}

	r.mu.RLock()
	factory, ok := r.factories[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Supports 判断文件是否有对应的加载器
func (r *Registry) Supports(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions 返回已注册的扩展名（排序后）
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.factories))
	for ext := range r.factories {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
