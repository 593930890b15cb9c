// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// ErrorTypeValidation 本地校验失败，尚未发出任何网络请求
	ErrorTypeValidation ErrorType = "validation_error"
	// ErrorTypeUpstreamParse 分段服务返回空响应或无法解析的响应
	ErrorTypeUpstreamParse ErrorType = "upstream_parse_error"
	// ErrorTypeUpstreamRefusal 图像服务因内容安全等原因拒绝生成
	ErrorTypeUpstreamRefusal ErrorType = "upstream_refusal_error"
	// ErrorTypeTransport 网络或服务不可用
	ErrorTypeTransport ErrorType = "transport_error"
	// ErrorTypeIngestion 上传文件无法读取或PDF无可提取文本
	ErrorTypeIngestion ErrorType = "ingestion_error"
	// ErrorTypeNotFound 资源不存在
	ErrorTypeNotFound ErrorType = "not_found"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
	}
}

// NewValidationError 创建校验错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewUpstreamParseError 创建上游解析错误
func NewUpstreamParseError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUpstreamParse, message, originalError)
}

// NewUpstreamRefusalError 创建上游拒绝错误，message保留服务返回的拒绝文本
func NewUpstreamRefusalError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUpstreamRefusal, message, originalError)
}

// NewTransportError 创建传输错误
func NewTransportError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTransport, message, originalError)
}

// NewIngestionError 创建文件摄取错误
func NewIngestionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeIngestion, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// typeOf 提取AppError的类型，非AppError返回空字符串
func typeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// IsValidationError 检查是否为校验错误
func IsValidationError(err error) bool {
	return typeOf(err) == ErrorTypeValidation
}

// IsUpstreamParseError 检查是否为上游解析错误
func IsUpstreamParseError(err error) bool {
	return typeOf(err) == ErrorTypeUpstreamParse
}

// IsUpstreamRefusalError 检查是否为上游拒绝错误
func IsUpstreamRefusalError(err error) bool {
	return typeOf(err) == ErrorTypeUpstreamRefusal
}

// IsTransportError 检查是否为传输错误
func IsTransportError(err error) bool {
	return typeOf(err) == ErrorTypeTransport
}

// IsIngestionError 检查是否为摄取错误
func IsIngestionError(err error) bool {
	return typeOf(err) == ErrorTypeIngestion
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return typeOf(err) == ErrorTypeNotFound
}

// RefusalText 取出拒绝错误中保留的上游拒绝文本
// 非拒绝错误返回空字符串
func RefusalText(err error) string {
	var appError *AppError
	if errors.As(err, &appError) && appError.Type == ErrorTypeUpstreamRefusal {
		return appError.Message
	}
	return ""
}
