package document

// FilterComplexMetadata 只保留向量库可存储的简单类型元数据
// 字符串、布尔、整数和浮点数保留，其余（nil、嵌套映射、列表、结构体、时间、指针）直接丢弃
func FilterComplexMetadata(meta map[string]interface{}) map[string]interface{} {
	filtered := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			filtered[k] = v
		}
	}
	return filtered
}

// SanitizeChunks 对每个分块的元数据执行过滤
func SanitizeChunks(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = Chunk{
			Text:     c.Text,
			Index:    c.Index,
			Metadata: FilterComplexMetadata(c.Metadata),
		}
	}
	return out
}
