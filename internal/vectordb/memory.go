package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fyerfyer/doc-rag-assistant/internal/fsutil"
)

// MemoryDataFile 内存仓库在持久化目录中的数据文件名
const MemoryDataFile = "memory.json"

// MemoryRepository 内存向量仓库实现
// 暴力检索，持久化为目录中的单个JSON文件
type MemoryRepository struct {
	mu        sync.RWMutex
	path      string
	dimension int
	distType  DistanceType
	documents []Document     // 按写入顺序保存
	idToPos   map[string]int // 文档ID到下标
}

// memorySnapshot 持久化格式
type memorySnapshot struct {
	Dimension int          `json:"dimension"`
	Distance  DistanceType `json:"distance"`
	Documents []Document   `json:"documents"`
}

// NewMemoryRepository 创建内存向量仓库，目录中已有数据时加载
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType, err := ParseDistanceType(string(config.DistanceType))
	if err != nil {
		return nil, err
	}

	repo := &MemoryRepository{
		path:      config.Path,
		dimension: config.Dimension,
		distType:  distType,
		idToPos:   make(map[string]int),
	}

	if config.Path != "" {
		if err := repo.load(); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// load 从持久化文件恢复
func (r *MemoryRepository) load() error {
	data, err := os.ReadFile(filepath.Join(r.path, MemoryDataFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read memory index: %w", err)
	}

	var snap memorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode memory index: %w", err)
	}
	if snap.Dimension != r.dimension {
		return fmt.Errorf("%w: index has %d, config has %d", ErrInvalidDimension, snap.Dimension, r.dimension)
	}
	if snap.Distance != "" && snap.Distance != r.distType {
		return fmt.Errorf("distance type mismatch: index uses %s, config uses %s", snap.Distance, r.distType)
	}

	r.documents = snap.Documents
	for i, doc := range r.documents {
		r.idToPos[doc.ID] = i
	}
	return nil
}

// AddBatch 批量添加文档，已存在的ID会被覆盖
func (r *MemoryRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	prepared, err := PrepareDocuments(docs, r.dimension, r.distType)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range prepared {
		if pos, ok := r.idToPos[doc.ID]; ok {
			r.documents[pos] = doc
			continue
		}
		r.idToPos[doc.ID] = len(r.documents)
		r.documents = append(r.documents, doc)
	}
	return nil
}

// DeleteBySource 删除指定来源文件的所有分块
func (r *MemoryRepository) DeleteBySource(source string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.documents[:0:0]
	removed := 0
	for _, doc := range r.documents {
		if doc.Source == source {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	if removed == 0 {
		return 0, nil
	}

	r.documents = kept
	r.idToPos = make(map[string]int, len(kept))
	for i, doc := range kept {
		r.idToPos[doc.ID] = i
	}
	return removed, nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	// 对于余弦距离，对查询向量进行归一化处理
	if r.distType == Cosine {
		vector = NormalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]Document, 0, len(r.documents))
	for _, doc := range r.documents {
		if MatchFilter(doc, filter) {
			candidates = append(candidates, doc)
		}
	}
	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	// 文档较多时按CPU核心数并行计算距离
	threads := runtime.NumCPU()
	var (
		results []SearchResult
		err     error
	)
	if len(candidates) < 100 || threads == 1 {
		results, err = r.score(vector, candidates, filter.MinScore)
	} else {
		results, err = r.parallelScore(vector, candidates, filter.MinScore, threads)
	}
	if err != nil {
		return nil, err
	}

	SortSearchResults(results)
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}
	return results, nil
}

// score 串行计算一组文档的得分
func (r *MemoryRepository) score(vector []float32, docs []Document, minScore float32) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(docs))
	for _, doc := range docs {
		dist, err := ComputeDistance(vector, doc.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %w", err)
		}

		score := DistanceToScore(dist, r.distType)
		if score >= minScore {
			results = append(results, SearchResult{
				Document: doc,
				Score:    score,
				Distance: dist,
			})
		}
	}
	return results, nil
}

// parallelScore 将文档分片后并行计算得分
func (r *MemoryRepository) parallelScore(vector []float32, docs []Document, minScore float32, threads int) ([]SearchResult, error) {
	perThread := (len(docs) + threads - 1) / threads

	type part struct {
		results []SearchResult
		err     error
	}
	parts := make([]part, threads)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		start := i * perThread
		end := start + perThread
		if end > len(docs) {
			end = len(docs)
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(i, start, end int) {
			defer wg.Done()
			res, err := r.score(vector, docs[start:end], minScore)
			parts[i] = part{results: res, err: err}
		}(i, start, end)
	}
	wg.Wait()

	var all []SearchResult
	for _, p := range parts {
		if p.err != nil {
			return nil, p.err
		}
		all = append(all, p.results...)
	}
	return all, nil
}

// Count 获取文档总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Sources 返回所有来源文件及其分块数量
func (r *MemoryRepository) Sources() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make(map[string]int)
	for _, doc := range r.documents {
		sources[doc.Source]++
	}
	return sources
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Save 将全部文档写入持久化文件
func (r *MemoryRepository) Save() error {
	if r.path == "" {
		return nil
	}

	r.mu.RLock()
	snap := memorySnapshot{
		Dimension: r.dimension,
		Distance:  r.distType,
		Documents: r.documents,
	}
	data, err := json.Marshal(snap)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode memory index: %w", err)
	}

	return fsutil.WriteFileAtomic(filepath.Join(r.path, MemoryDataFile), data, 0644)
}

// Close 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
