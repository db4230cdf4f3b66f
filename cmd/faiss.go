//go:build !nofaiss

package main

// 注册 "faiss" 向量后端，需要cgo和libfaiss；使用 -tags nofaiss 构建时只有内存后端可用
import _ "github.com/fyerfyer/doc-rag-assistant/internal/vectordb/faissdb"
