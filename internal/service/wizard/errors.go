package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eduadocs/backend/internal/domain"
)

// ValidationError 用户输入不合法，可直接提示用户修正
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Message, strings.Join(e.Fields, ", "))
}

// PreconditionError 进入某个步骤所需的数据缺失。
// 正常的界面流程不会触发，出现即说明请求绕过了界面。
type PreconditionError struct {
	Step   domain.Step
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for step %q: %s", e.Step, e.Reason)
}

// ExternalServiceError 生成或导出服务失败，会话状态保持不变，用户可重试
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s service failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsValidation 判断是否为输入校验错误
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPrecondition 判断是否为前置条件错误
func IsPrecondition(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}

// IsExternal 判断是否为外部服务错误
func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}
