package document

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// 默认分隔符，从段落到单个字符逐级细化
var defaultSeparators = []string{"\n\n", "\n", ". ", "。", " ", ""}

// SplitterConfig 分段器配置
type SplitterConfig struct {
	ChunkSize    int      // 分块大小（按字符数）
	ChunkOverlap int      // 相邻分块的重叠字符数
	Separators   []string // 分隔符优先级列表，为空时使用默认值
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    1000,
		ChunkOverlap: 100,
		Separators:   defaultSeparators,
	}
}

// Validate 校验分段器配置
func (c SplitterConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidConfig, c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Splitter 文本分段器接口
type Splitter interface {
	// SplitDocuments 将文档切分为分块，分块继承父文档的元数据
	SplitDocuments(docs []Document) []Chunk
}

// TextSplitter 递归字符分段器
// 优先按段落切分，块仍然过大时依次退化到换行、句子、单词和字符
type TextSplitter struct {
	config SplitterConfig
}

// NewTextSplitter 创建新的文本分段器
func NewTextSplitter(config SplitterConfig) (*TextSplitter, error) {
	if len(config.Separators) == 0 {
		config.Separators = defaultSeparators
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TextSplitter{config: config}, nil
}

// Config 返回分段器配置
func (s *TextSplitter) Config() SplitterConfig {
	return s.config
}

// SplitText 将文本切分为若干块
func (s *TextSplitter) SplitText(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return s.splitRecursive(text, s.config.Separators)
}

// SplitDocuments 切分一组文档
func (s *TextSplitter) SplitDocuments(docs []Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Content) {
			chunks = append(chunks, Chunk{
				Text:     text,
				Index:    i,
				Metadata: copyMetadata(doc.Metadata),
			})
		}
	}
	return chunks
}

// splitRecursive 使用第一个出现在文本中的分隔符切分，过大的片段交给后续分隔符
func (s *TextSplitter) splitRecursive(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.config.ChunkSize {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			final = append(final, s.mergePieces(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				final = append(final, trimmed)
			}
		} else {
			final = append(final, s.splitRecursive(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergePieces(good)...)
	}
	return final
}

// mergePieces 将小片段合并到不超过ChunkSize的块中
// 新块开始时保留上一块末尾不超过ChunkOverlap的片段
func (s *TextSplitter) mergePieces(pieces []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.config.ChunkSize && len(current) > 0 {
			if chunk := joinPieces(current); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(current) > 0 && (total > s.config.ChunkOverlap || total+n > s.config.ChunkSize) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}

	if chunk := joinPieces(current); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepSeparator 切分文本并将分隔符保留在前一段末尾，空分隔符按字符切分
func splitKeepSeparator(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}

	for _, p := range strings.SplitAfter(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// copyMetadata 浅拷贝元数据
func copyMetadata(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
