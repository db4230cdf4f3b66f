package ingest

import "fmt"

// UnsupportedPolicy 遇到没有加载器的文件时的处理方式
type UnsupportedPolicy string

const (
	// SkipUnsupported 静默跳过，不写清单
	SkipUnsupported UnsupportedPolicy = "skip-unsupported"
	// ErrorOnUnsupported 中止本次运行
	ErrorOnUnsupported UnsupportedPolicy = "error-on-unsupported"
)

// ParseUnsupportedPolicy 解析策略，空字符串视为跳过
func ParseUnsupportedPolicy(s string) (UnsupportedPolicy, error) {
	switch UnsupportedPolicy(s) {
	case "", SkipUnsupported:
		return SkipUnsupported, nil
	case ErrorOnUnsupported:
		return ErrorOnUnsupported, nil
	default:
		return "", fmt.Errorf("unknown unsupported policy: %s", s)
	}
}

// FailurePolicy 加载或嵌入失败时的处理方式
type FailurePolicy string

const (
	// Abort 第一个失败即停止
	Abort FailurePolicy = "abort"
	// Continue 记录失败后处理下一个文件
	Continue FailurePolicy = "continue"
)

// ParseFailurePolicy 解析策略，空字符串视为中止
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", Abort:
		return Abort, nil
	case Continue:
		return Continue, nil
	default:
		return "", fmt.Errorf("unknown failure policy: %s", s)
	}
}
