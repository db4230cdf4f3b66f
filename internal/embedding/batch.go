package embedding

import (
	"context"
	"fmt"
)

// BatchProcessor 批处理器
// 将大量文本按批次依次发送，保持结果顺序与输入一致
type BatchProcessor struct {
	client    Client // 嵌入客户端
	batchSize int    // 每批处理的文本数量
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &BatchProcessor{
		client:    client,
		batchSize: batchSize,
	}
}

// Process 依次处理各批次，任一批次失败则整体失败且不返回部分结果
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for i, batch := range splitIntoBatches(texts, p.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := p.client.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d processing error: %w", i, err)
		}
		if len(result) != len(batch) {
			return nil, fmt.Errorf("batch %d: %w: expected %d vectors, got %d", i, ErrBadResponse, len(batch), len(result))
		}
		vectors = append(vectors, result...)
	}

	return vectors, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
