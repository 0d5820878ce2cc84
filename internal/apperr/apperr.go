// Package apperr 定义服务内通用的错误分类（校验错误 / 上游错误 / 内部错误）。
package apperr

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
)

// 哨兵错误，用 errors.Is 判断分类
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrUpstream       = errors.New("market data upstream error")
	ErrRateLimited    = errors.New("rate limited")
)

// ValidationError 单个字段的校验错误
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// ValidationErrors 一次请求的全部校验错误（一次性返回给客户端）
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error { return ErrInvalidRequest }

// Add 追加一个字段错误
func (v *ValidationErrors) Add(field string, value any, format string, args ...any) {
	// NaN/Inf 无法 JSON 序列化
	if f, ok := value.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		value = fmt.Sprint(f)
	}
	*v = append(*v, &ValidationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
}

// Err 没有错误时返回 nil（避免 typed-nil 问题）
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Invalid 构造单字段校验错误
func Invalid(field string, value any, message string) error {
	return ValidationErrors{{Field: field, Value: value, Message: message}}
}

// HTTPStatus 将错误映射为 HTTP 状态码
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Fields 取出校验错误的字段明细；非校验错误返回 nil
func Fields(err error) ValidationErrors {
	var all ValidationErrors
	if errors.As(err, &all) {
		return all
	}
	var one *ValidationError
	if errors.As(err, &one) {
		return ValidationErrors{one}
	}
	return nil
}
