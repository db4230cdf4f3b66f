package vectordb

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ComputeDistance 计算两个向量间的距离，值越小越相似
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrInvalidDimension, len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return -dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// cosineDistance 计算余弦距离
func cosineDistance(v1, v2 []float32) float32 {
	// 余弦距离 = 1 - 点积 / (||v1|| * ||v2||)
	dot := dotProduct(v1, v2)
	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)

	if norm1 == 0 || norm2 == 0 {
		return 1.0
	}

	similarity := dot / (norm1 * norm2)
	// 处理浮点精度问题
	if similarity > 1.0 {
		similarity = 1.0
	}
	return 1.0 - similarity
}

// dotProduct 计算两个向量的点积
func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := 0; i < len(v1); i++ {
		dot += v1[i] * v2[i]
	}
	return dot
}

// euclideanDistance 计算欧几里德距离
func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := 0; i < len(v1); i++ {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// NormalizeVector 归一化向量（使其长度为1）
func NormalizeVector(v []float32) []float32 {
	norm := vectorNorm(v)
	if norm == 0 {
		return v // 零向量无法归一化
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// DistanceToScore 将距离转换为评分，越大越相似
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		// 余弦相似度
		return 1 - distance
	case DotProduct:
		// 点积本身
		return -distance
	case Euclidean:
		// 距离越小分数越接近1
		return 1 / (1 + distance)
	default:
		return 0
	}
}

// MatchFilter 判断文档是否满足来源和元数据过滤条件
func MatchFilter(doc Document, filter SearchFilter) bool {
	if len(filter.Sources) > 0 {
		found := false
		for _, s := range filter.Sources {
			if doc.Source == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return matchMetadata(doc.Metadata, filter.Metadata)
}

// matchMetadata 检查文档元数据是否匹配过滤条件
func matchMetadata(docMeta map[string]interface{}, filterMeta map[string]interface{}) bool {
	for key, filterValue := range filterMeta {
		docValue, exists := docMeta[key]
		if !exists || docValue != filterValue {
			return false
		}
	}
	return true
}

// SortSearchResults 对搜索结果按相似度评分降序排序
// 分数相同时按来源和位置排序，保证结果稳定
func SortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Document.Source != results[j].Document.Source {
			return results[i].Document.Source < results[j].Document.Source
		}
		return results[i].Document.Position < results[j].Document.Position
	})
}

// ValidateVector 验证向量维度和有效性
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}

	return nil
}

// PrepareDocuments 校验并补全待写入的文档
// 余弦距离下向量先归一化，返回新的切片不修改入参
func PrepareDocuments(docs []Document, dimension int, distType DistanceType) ([]Document, error) {
	prepared := make([]Document, len(docs))
	now := time.Now()
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("%w: document %d has no ID", ErrInvalidID, i)
		}
		if err := ValidateVector(doc.Vector, dimension); err != nil {
			return nil, fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}
		if distType == Cosine {
			doc.Vector = NormalizeVector(doc.Vector)
		}
		prepared[i] = doc
	}
	return prepared, nil
}
