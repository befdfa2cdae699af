package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码和错误消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError // 默认返回服务器错误
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeTokenMissing = 10001
	CodeTokenInvalid = 10002
	CodeTokenExpired = 10003

	// 请求相关 11000-11999
	CodeInvalidParams = 11001

	// 会话相关 20000-20999
	CodeConversationNotFound  = 20001
	CodeNotParticipant        = 20002
	CodeInvalidParticipants   = 20003
	CodeGroupTooSmall         = 20004
	CodeDirectNeedsTwoMembers = 20005

	// 消息相关 21000-21999
	CodeMessageNotFound       = 21001
	CodeDeliveryRecordMissing = 21002
	CodeInvalidContentType    = 21003
	CodeEmptyContent          = 21004

	// 系统错误 50000-50999
	CodeServerError = 50001
	CodeDBError     = 50002
	CodeBusError    = 50003
	CodeCacheError  = 50004
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrTokenMissing = NewError(CodeTokenMissing, "缺少认证 Token")
	ErrTokenInvalid = NewError(CodeTokenInvalid, "Token 无效")
	ErrTokenExpired = NewError(CodeTokenExpired, "Token 已过期")
)

// 请求相关
var ErrInvalidParams = NewError(CodeInvalidParams, "参数校验失败")

// 会话相关
var (
	ErrConversationNotFound  = NewError(CodeConversationNotFound, "会话不存在")
	ErrNotParticipant        = NewError(CodeNotParticipant, "用户不是会话成员")
	ErrInvalidParticipants   = NewError(CodeInvalidParticipants, "成员列表不合法")
	ErrGroupTooSmall         = NewError(CodeGroupTooSmall, "群聊至少需要 3 个成员")
	ErrDirectNeedsTwoMembers = NewError(CodeDirectNeedsTwoMembers, "单聊必须恰好 2 个成员")
)

// 消息相关
var (
	ErrMessageNotFound       = NewError(CodeMessageNotFound, "消息不存在")
	ErrDeliveryRecordMissing = NewError(CodeDeliveryRecordMissing, "用户没有对应的投递记录")
	ErrInvalidContentType    = NewError(CodeInvalidContentType, "消息类型不合法")
	ErrEmptyContent          = NewError(CodeEmptyContent, "消息内容不能为空")
)

// 系统相关
var (
	ErrServerError = NewError(CodeServerError, "服务器内部错误")
	ErrDBError     = NewError(CodeDBError, "数据库错误")
	ErrBusError    = NewError(CodeBusError, "消息总线错误")
	ErrCacheError  = NewError(CodeCacheError, "缓存错误")
)
