package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateReferral 该发票已经有推荐记录，不会覆盖
	ErrDuplicateReferral = errors.New("该发票已存在推荐记录")

	ErrMissingKey = errors.New("缺少 API Key")
	ErrInvalidKey = errors.New("API Key 无效")
	ErrForbidden  = errors.New("权限不足")
	// ErrAuthUnavailable 凭证存储不可用，按拒绝处理
	ErrAuthUnavailable = errors.New("鉴权服务不可用")
)

// FieldError 单个字段的校验失败
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError 一次性列出所有不合法的字段
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "参数校验失败: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, rule, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Rule: rule, Message: message})
}

// Has 某字段是否已经有错误
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// OrNil 没有错误时返回 nil，避免返回非 nil 的空错误
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError 单字段错误
func NewValidationError(field, rule, message string) *ValidationError {
	ve := &ValidationError{}
	ve.Add(field, rule, message)
	return ve
}
