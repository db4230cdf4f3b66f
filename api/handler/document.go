package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-rag-assistant/api/middleware"
	"github.com/fyerfyer/doc-rag-assistant/api/model"
	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/index"
	"github.com/fyerfyer/doc-rag-assistant/internal/logging"
	"github.com/fyerfyer/doc-rag-assistant/internal/manifest"
)

// IndexStats 索引统计接口，由retrieval.Tool实现
type IndexStats interface {
	Sources() (map[string]int, error)
}

// DocumentHandler 管理源目录中的文件
type DocumentHandler struct {
	sourceDir string             // 源目录
	registry  *document.Registry // 加载器注册表
	manifest  manifest.Store     // 已处理文件清单
	stats     IndexStats         // 索引统计，可以为空
	logger    *logrus.Logger     // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(
	sourceDir string,
	registry *document.Registry,
	store manifest.Store,
	stats IndexStats,
	logger *logrus.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		sourceDir: sourceDir,
		registry:  registry,
		manifest:  store,
		stats:     stats,
		logger:    logger,
	}
}

// UploadDocument 上传文件到源目录，下一次导入时处理
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		middleware.HandleError(c, middleware.NewValidationError("未提供文件", err.Error()))
		return
	}

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		middleware.HandleError(c, middleware.NewValidationError("无效的文件名"))
		return
	}
	if !h.registry.Supports(name) {
		middleware.HandleError(c, middleware.NewValidationError(
			"不支持的文件类型",
			"supported: "+strings.Join(h.registry.Extensions(), ", "),
		))
		return
	}

	if err := os.MkdirAll(h.sourceDir, 0755); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("保存文件失败", err.Error()))
		return
	}

	// 先写临时文件再重命名，导入时不会读到写了一半的文件
	tmp := filepath.Join(h.sourceDir, ".upload-"+uuid.New().String())
	if err := c.SaveUploadedFile(header, tmp); err != nil {
		os.Remove(tmp)
		middleware.HandleError(c, middleware.NewInternalError("保存文件失败", err.Error()))
		return
	}
	if err := os.Rename(tmp, filepath.Join(h.sourceDir, name)); err != nil {
		os.Remove(tmp)
		middleware.HandleError(c, middleware.NewInternalError("保存文件失败", err.Error()))
		return
	}

	h.logger.WithFields(logrus.Fields{
		logging.FieldFile: name,
		"size":            header.Size,
	}).Info("File uploaded")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentUploadResponse{
		FileName: name,
		Size:     header.Size,
	}))
}

// ListDocuments 列出源目录中的文件及其导入状态
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	ctx := c.Request.Context()

	entries, err := os.ReadDir(h.sourceDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			middleware.HandleError(c, middleware.NewNotFoundError("源目录不存在"))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("读取源目录失败", err.Error()))
		return
	}

	m, err := h.manifest.Load(ctx)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("读取清单失败", err.Error()))
		return
	}

	var sources map[string]int
	if h.stats != nil {
		sources, err = h.stats.Sources()
		if err != nil && !errors.Is(err, index.ErrIndexNotFound) {
			h.logger.WithError(err).Warn("Failed to read index statistics")
		}
	}

	docs := make([]model.DocumentInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		name := entry.Name()
		doc := model.DocumentInfo{
			FileName:  name,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Supported: h.registry.Supports(name),
			Indexed:   !m.NeedsProcessing(name, manifest.ModTime(info)),
			Chunks:    sources[filepath.Join(h.sourceDir, name)],
		}
		if v, ok := m[name]; ok {
			t := manifest.EpochToTime(v)
			doc.IndexedAt = &t
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].FileName < docs[j].FileName })

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		Total:     len(docs),
		Documents: docs,
	}))
}
