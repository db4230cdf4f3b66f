// Package faissdb 基于Faiss扁平索引的向量仓库
// 依赖cgo和libfaiss，通过空白导入注册为 "faiss" 后端
package faissdb

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"

	"github.com/fyerfyer/doc-rag-assistant/internal/fsutil"
	"github.com/fyerfyer/doc-rag-assistant/internal/vectordb"
)

// 持久化目录中的文件名
const (
	IndexFile = "index.faiss"
	DocsFile  = "index.docs.json"
)

// Repository Faiss向量仓库
// documents[i] 对应索引中的第i个向量
type Repository struct {
	mu        sync.RWMutex
	index     faiss.Index
	documents []vectordb.Document
	idToPos   map[string]int
	path      string
	dimension int
	distType  vectordb.DistanceType
}

// New 创建Faiss向量仓库，目录中已有索引时加载
func New(config vectordb.Config) (vectordb.Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType, err := vectordb.ParseDistanceType(string(config.DistanceType))
	if err != nil {
		return nil, err
	}

	repo := &Repository{
		idToPos:   make(map[string]int),
		path:      config.Path,
		dimension: config.Dimension,
		distType:  distType,
	}

	if config.Path != "" && fsutil.Exists(filepath.Join(config.Path, IndexFile)) {
		if err := repo.load(); err != nil {
			return nil, err
		}
		return repo, nil
	}

	repo.index, err = createIndex(config.Dimension, distType)
	if err != nil {
		return nil, fmt.Errorf("failed to create Faiss index: %w", err)
	}
	return repo, nil
}

// createIndex 创建空的扁平索引
var createIndex = newFlatIndex

// newFlatIndex 余弦和点积使用内积度量，欧氏距离使用L2度量
func newFlatIndex(dimension int, distType vectordb.DistanceType) (faiss.Index, error) {
	metric := faiss.MetricL2
	if distType == vectordb.Cosine || distType == vectordb.DotProduct {
		metric = faiss.MetricInnerProduct
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// load 读取索引文件和文档文件
func (r *Repository) load() error {
	index, err := faiss.ReadIndex(filepath.Join(r.path, IndexFile), 0)
	if err != nil {
		return fmt.Errorf("failed to read index file: %w", err)
	}
	if index.D() != r.dimension {
		index.Delete()
		return fmt.Errorf("%w: index has %d, config has %d", vectordb.ErrInvalidDimension, index.D(), r.dimension)
	}

	data, err := os.ReadFile(filepath.Join(r.path, DocsFile))
	if err != nil {
		index.Delete()
		return fmt.Errorf("failed to read documents file: %w", err)
	}

	var docs []vectordb.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		index.Delete()
		return fmt.Errorf("failed to decode documents file: %w", err)
	}
	if int64(len(docs)) != index.Ntotal() {
		index.Delete()
		return fmt.Errorf("index holds %d vectors but documents file has %d entries", index.Ntotal(), len(docs))
	}

	r.index = index
	r.documents = docs
	for i, doc := range docs {
		r.idToPos[doc.ID] = i
	}
	return nil
}

// AddBatch 批量添加文档
func (r *Repository) AddBatch(docs []vectordb.Document) error {
	if len(docs) == 0 {
		return nil
	}

	prepared, err := vectordb.PrepareDocuments(docs, r.dimension, r.distType)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range prepared {
		if _, ok := r.idToPos[doc.ID]; ok {
			return fmt.Errorf("%w: duplicate document ID %s", vectordb.ErrInvalidID, doc.ID)
		}
	}

	flat := make([]float32, 0, len(prepared)*r.dimension)
	for _, doc := range prepared {
		flat = append(flat, doc.Vector...)
	}
	if err := r.index.Add(flat); err != nil {
		return fmt.Errorf("failed to add vectors to index: %w", err)
	}

	for _, doc := range prepared {
		r.idToPos[doc.ID] = len(r.documents)
		r.documents = append(r.documents, doc)
	}
	return nil
}

// DeleteBySource 删除来源文件的分块后重建扁平索引，保持下标与文档一一对应
func (r *Repository) DeleteBySource(source string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]vectordb.Document, 0, len(r.documents))
	for _, doc := range r.documents {
		if doc.Source != source {
			kept = append(kept, doc)
		}
	}
	removed := len(r.documents) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	// 在新索引上重建，成功后才替换，失败时原索引和文档保持一致
	rebuilt, err := createIndex(r.dimension, r.distType)
	if err != nil {
		return 0, fmt.Errorf("failed to create Faiss index: %w", err)
	}
	if len(kept) > 0 {
		flat := make([]float32, 0, len(kept)*r.dimension)
		for _, doc := range kept {
			flat = append(flat, doc.Vector...)
		}
		if err := rebuilt.Add(flat); err != nil {
			rebuilt.Delete()
			return 0, fmt.Errorf("failed to rebuild index: %w", err)
		}
	}

	r.index.Delete()
	r.index = rebuilt
	r.documents = kept
	r.idToPos = make(map[string]int, len(kept))
	for i, doc := range kept {
		r.idToPos[doc.ID] = i
	}
	return removed, nil
}

// Search 相似度搜索
// 有过滤条件时检索全部向量再过滤
func (r *Repository) Search(vector []float32, filter vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	if err := vectordb.ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == vectordb.Cosine {
		vector = vectordb.NormalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := int64(len(r.documents))
	if total == 0 {
		return []vectordb.SearchResult{}, nil
	}

	k := int64(filter.MaxResults)
	if k <= 0 || len(filter.Sources) > 0 || len(filter.Metadata) > 0 || k > total {
		k = total
	}

	distances, labels, err := r.index.Search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]vectordb.SearchResult, 0, len(labels))
	for i, label := range labels {
		if label < 0 || label >= total {
			continue
		}
		doc := r.documents[label]
		if !vectordb.MatchFilter(doc, filter) {
			continue
		}

		dist := r.toDistance(distances[i])
		score := vectordb.DistanceToScore(dist, r.distType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, vectordb.SearchResult{
			Document: doc,
			Score:    score,
			Distance: dist,
		})
	}

	vectordb.SortSearchResults(results)
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}
	return results, nil
}

// toDistance 将Faiss返回值转换为与内存后端一致的距离
// 内积度量返回相似度，L2度量返回距离的平方
func (r *Repository) toDistance(v float32) float32 {
	switch r.distType {
	case vectordb.Cosine:
		return 1 - v
	case vectordb.DotProduct:
		return -v
	default:
		return float32(math.Sqrt(float64(v)))
	}
}

// Count 获取文档总数
func (r *Repository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Sources 返回所有来源文件及其分块数量
func (r *Repository) Sources() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make(map[string]int)
	for _, doc := range r.documents {
		sources[doc.Source]++
	}
	return sources
}

// GetDimension 返回向量维数
func (r *Repository) GetDimension() int {
	return r.dimension
}

// Save 写入索引文件和文档文件
func (r *Repository) Save() error {
	if r.path == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(r.path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Faiss只能直接写文件，先写临时文件再重命名
	tmpIndex := filepath.Join(r.path, "."+IndexFile+".tmp")
	if err := faiss.WriteIndex(r.index, tmpIndex); err != nil {
		os.Remove(tmpIndex)
		return fmt.Errorf("failed to write index to file: %w", err)
	}

	data, err := json.Marshal(r.documents)
	if err != nil {
		os.Remove(tmpIndex)
		return fmt.Errorf("failed to encode documents: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(r.path, DocsFile), data, 0644); err != nil {
		os.Remove(tmpIndex)
		return err
	}

	if err := os.Rename(tmpIndex, filepath.Join(r.path, IndexFile)); err != nil {
		return fmt.Errorf("failed to rename index file: %w", err)
	}
	return nil
}

// Close 释放Faiss索引占用的内存
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		r.index.Delete()
		r.index = nil
	}
	return nil
}

func init() {
	vectordb.RegisterRepository("faiss", New)
}
