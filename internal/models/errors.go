package models

import "errors"

var (
	// ErrRunNotFound 运行记录不存在
	ErrRunNotFound = errors.New("ingest run not found")
)
