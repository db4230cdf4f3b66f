package ingest

import "time"

// Outcome 单个文件的处理结果
type Outcome string

const (
	OutcomeProcessed   Outcome = "processed"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeFailed      Outcome = "failed"
	OutcomeQuarantined Outcome = "quarantined"
)

// FileResult 单个文件的处理记录
type FileResult struct {
	File    string  `json:"file"`
	Outcome Outcome `json:"outcome"`
	Chunks  int     `json:"chunks,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Report 一次导入运行的汇总
type Report struct {
	RunID        string       `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Processed    int          `json:"processed"`
	Skipped      int          `json:"skipped"`
	Unsupported  int          `json:"unsupported"`
	Failed       int          `json:"failed"`
	Quarantined  int          `json:"quarantined"`
	Chunks       int          `json:"chunks"`       // 本次新增的分块数
	TotalChunks  int          `json:"total_chunks"` // 运行结束时索引中的分块总数
	IndexCreated bool         `json:"index_created"`
	NoChanges    bool         `json:"no_changes"`
	Snapshot     string       `json:"snapshot,omitempty"`
	Files        []FileResult `json:"files"`
}

func (r *Report) add(res FileResult) {
	switch res.Outcome {
	case OutcomeProcessed:
		r.Processed++
		r.Chunks += res.Chunks
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeUnsupported:
		r.Unsupported++
	case OutcomeFailed:
		r.Failed++
	case OutcomeQuarantined:
		r.Quarantined++
	}
	r.Files = append(r.Files, res)
}
