// internal/services/ingest_service.go
package services

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Corphon/StoryFrameAI/internal/errors"
	"github.com/ledongthuc/pdf"
)

// IngestService 从上传的文件中提取剧本文本
type IngestService struct{}

// NewIngestService 创建文件提取服务
func NewIngestService() *IngestService {
	return &IngestService{}
}

// SupportedExtensions 可上传的文件类型
func (s *IngestService) SupportedExtensions() []string {
	return []string{".txt", ".pdf"}
}

// IsSupported 检查文件名后缀是否可处理
func (s *IngestService) IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, supported := range s.SupportedExtensions() {
		if ext == supported {
			return true
		}
	}
	return false
}

// Extract 按文件类型提取纯文本
// 提取失败或内容为空都视为摄取失败，不产生部分结果
func (s *IngestService) Extract(filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", apperrors.NewIngestionError("上传的文件为空", nil)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return s.extractPDF(content)
	case ".txt":
		return s.extractText(content)
	default:
		return "", apperrors.NewIngestionError("不支持的文件类型: "+ext, nil)
	}
}

// extractText 读取纯文本文件
func (s *IngestService) extractText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", apperrors.NewIngestionError("文本文件不是有效的UTF-8编码", nil)
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", apperrors.NewIngestionError("文本文件没有可用内容", nil)
	}
	return text, nil
}

// extractPDF 从PDF中提取全部页面的纯文本
func (s *IngestService) extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", apperrors.NewIngestionError("PDF文件无法打开", err)
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		// 单页提取失败跳过，整体为空才算失败
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if strings.TrimSpace(pageText) != "" {
			builder.WriteString(pageText)
			builder.WriteString("\n")
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", apperrors.NewIngestionError("PDF中没有可提取的文本", nil)
	}
	return text, nil
}
