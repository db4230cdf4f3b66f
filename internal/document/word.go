package document

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"strings"
)

// WordLoader Word文档加载器
// .docx 整个文件生成一个Document，段落之间以空行分隔
type WordLoader struct{}

// NewWordLoader 创建一个新的Word加载器
func NewWordLoader() *WordLoader {
	return &WordLoader{}
}

// Load 加载Word文档
func (l *WordLoader) Load(path string) ([]Document, error) {
	if strings.ToLower(filepath.Ext(path)) == ".doc" {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrLegacyFormat)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	content, err := readZipEntry(&zr.Reader, "word/document.xml")
	if err != nil {
		return nil, err
	}

	paragraphs, err := paragraphTexts(content, "p", "t")
	if err != nil {
		return nil, fmt.Errorf("failed to parse docx: %w", err)
	}

	var kept []string
	for _, p := range paragraphs {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}

	text := strings.TrimSpace(strings.Join(kept, "\n\n"))
	if text == "" {
		return nil, nil
	}

	return []Document{{
		Content:  text,
		Metadata: map[string]interface{}{MetaSource: path},
	}}, nil
}
