package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fyerfyer/doc-rag-assistant/internal/fsutil"
)

// JSONStore 以JSON文件保存清单
// 格式为 {"文件名": 修改时间}
type JSONStore struct {
	path string
}

// NewJSONStore 创建JSON清单存储
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path 返回清单文件路径
func (s *JSONStore) Path() string {
	return s.path
}

// Load 读取清单文件
func (s *JSONStore) Load(ctx context.Context) (Manifest, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m := Manifest{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", s.path, err)
	}
	return m, nil
}

// Save 原子地写入清单文件
func (s *JSONStore) Save(ctx context.Context, m Manifest) error {
	if m == nil {
		m = Manifest{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
