// Package embeddingtest 提供测试用的确定性嵌入客户端
package embeddingtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/fyerfyer/doc-rag-assistant/internal/embedding"
)

// ErrInjected 注入的嵌入失败
var ErrInjected = errors.New("injected embedding failure")

// Fake 基于词袋哈希的嵌入客户端
// 共享词语越多的文本向量越接近，足以验证检索排序
type Fake struct {
	mu     sync.Mutex
	name   string
	dim    int
	failOn string

	EmbedCalls int // Embed调用次数
	BatchCalls int // EmbedBatch调用次数
	Texts      int // 累计嵌入的文本数
}

// New 创建测试客户端
func New(name string, dim int) *Fake {
	return &Fake{name: name, dim: dim}
}

// FailOn 文本包含substr时返回ErrInjected，空字符串表示不失败
func (f *Fake) FailOn(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = substr
}

// Name 返回模型名称
func (f *Fake) Name() string { return f.name }

// Dimension 返回向量维度
func (f *Fake) Dimension() int { return f.dim }

// Embed 生成单条文本的向量
func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EmbedCalls++
	return f.vector(text)
}

// EmbedBatch 批量生成向量
func (f *Fake) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BatchCalls++

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.vector(text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *Fake) vector(text string) ([]float32, error) {
	if text == "" {
		return nil, embedding.ErrEmptyText
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, ErrInjected
	}
	f.Texts++

	v := make([]float32, f.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(f.dim)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v, nil
}

var _ embedding.Client = (*Fake)(nil)
