package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFLoader PDF文档加载器
// 每一页生成一个Document，文本按字体编码和ToUnicode映射解码
type PDFLoader struct{}

// NewPDFLoader 创建一个新的PDF加载器
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

// Load 提取PDF每一页的文本
// 页面显示了文本却没有一页能解码时返回ErrUndecodableText，不把文件当作空白文件
func (l *PDFLoader) Load(path string) ([]Document, error) {
	// pdfcpu负责校验文件结构
	totalPages, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF page count: %w", err)
	}

	texts, err := pageTexts(path)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(texts))
	for i, text := range texts {
		if text == "" {
			continue
		}
		docs = append(docs, Document{
			Content: text,
			Metadata: map[string]interface{}{
				MetaSource:     path,
				MetaPage:       i, // 页码从0开始
				MetaTotalPages: totalPages,
			},
		})
	}
	if len(docs) > 0 {
		return docs, nil
	}

	shown, err := textShowingPages(path)
	if err != nil {
		return nil, err
	}
	if shown > 0 {
		return nil, fmt.Errorf("%w: %d page(s) in %s", ErrUndecodableText, shown, filepath.Base(path))
	}
	return docs, nil
}

// pageTexts 逐页解码文本，下标为从0开始的页码
func pageTexts(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	texts := make([]string, r.NumPage())
	for i := range texts {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i+1, err)
		}
		texts[i] = cleanPageText(text)
	}
	return texts, nil
}

// cleanPageText 去掉无效UTF-8、控制字符和无法映射的字形
func cleanPageText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == unicode.ReplacementChar || unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// textShowingPages 统计内容流中带有文本显示操作的页数
func textShowingPages(path string) (int, error) {
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractContentFile(path, tmpDir, nil, model.NewDefaultConfiguration()); err != nil {
		return 0, fmt.Errorf("failed to extract content from PDF: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read extracted content dir: %w", err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, e.Name()))
		if err != nil {
			return 0, fmt.Errorf("failed to read page content: %w", err)
		}
		if showsText(data) {
			n++
		}
	}
	return n, nil
}
