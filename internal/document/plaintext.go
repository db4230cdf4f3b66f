package document

import (
	"fmt"
	"os"
	"strings"
)

// PlainTextLoader 纯文本加载器
type PlainTextLoader struct{}

// NewPlainTextLoader 创建一个新的纯文本加载器
func NewPlainTextLoader() *PlainTextLoader {
	return &PlainTextLoader{}
}

// Load 加载纯文本文件
func (l *PlainTextLoader) Load(path string) ([]Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}

	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	return []Document{{
		Content:  text,
		Metadata: map[string]interface{}{MetaSource: path},
	}}, nil
}
