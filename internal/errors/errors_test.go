package errors

import (
	"errors"
	"testing"
)

func TestNewError(t *testing.T) {
	err := NewError(20001, "test error")

	if err.Code != 20001 {
		t.Errorf("Expected code 20001, got %d", err.Code)
	}
	if err.Message != "test error" {
		t.Errorf("Expected message 'test error', got '%s'", err.Message)
	}
	if err.Err != nil {
		t.Error("Expected Err to be nil")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewError(20001, "test error"),
			expected: "[20001] test error",
		},
		{
			name:     "with wrapped error",
			err:      NewError(20001, "test error").Wrap(errors.New("original error")),
			expected: "[20001] test error: original error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestAppError_Wrap(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := ErrConversationNotFound.Wrap(originalErr)

	if appErr.Code != ErrConversationNotFound.Code {
		t.Errorf("Expected code %d, got %d", ErrConversationNotFound.Code, appErr.Code)
	}
	if appErr.Message != ErrConversationNotFound.Message {
		t.Errorf("Expected message '%s', got '%s'", ErrConversationNotFound.Message, appErr.Message)
	}
	if appErr.Err != originalErr {
		t.Error("Expected wrapped error to be the original error")
	}
}

func TestAppError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := ErrMessageNotFound.Wrap(originalErr)

	unwrapped := errors.Unwrap(appErr)
	if unwrapped != originalErr {
		t.Error("Expected unwrapped error to be the original error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   *AppError
		expected bool
	}{
		{
			name:     "same error",
			err:      ErrConversationNotFound,
			target:   ErrConversationNotFound,
			expected: true,
		},
		{
			name:     "wrapped same error",
			err:      ErrConversationNotFound.Wrap(errors.New("wrapped")),
			target:   ErrConversationNotFound,
			expected: true,
		},
		{
			name:     "different error",
			err:      ErrMessageNotFound,
			target:   ErrConversationNotFound,
			expected: false,
		},
		{
			name:     "non-app error",
			err:      errors.New("standard error"),
			target:   ErrConversationNotFound,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.target); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "app error",
			err:      ErrConversationNotFound,
			expected: CodeConversationNotFound,
		},
		{
			name:     "wrapped app error",
			err:      ErrDeliveryRecordMissing.Wrap(errors.New("wrapped")),
			expected: CodeDeliveryRecordMissing,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: CodeServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestPredefinedErrors(t *testing.T) {
	// 验证预定义错误的 Code 是否正确
	predefinedErrors := map[*AppError]int{
		ErrTokenMissing:          CodeTokenMissing,
		ErrTokenInvalid:          CodeTokenInvalid,
		ErrTokenExpired:          CodeTokenExpired,
		ErrConversationNotFound:  CodeConversationNotFound,
		ErrNotParticipant:        CodeNotParticipant,
		ErrInvalidParticipants:   CodeInvalidParticipants,
		ErrGroupTooSmall:         CodeGroupTooSmall,
		ErrDirectNeedsTwoMembers: CodeDirectNeedsTwoMembers,
		ErrMessageNotFound:       CodeMessageNotFound,
		ErrDeliveryRecordMissing: CodeDeliveryRecordMissing,
		ErrInvalidContentType:    CodeInvalidContentType,
		ErrEmptyContent:          CodeEmptyContent,
		ErrServerError:           CodeServerError,
		ErrDBError:               CodeDBError,
		ErrBusError:              CodeBusError,
		ErrCacheError:            CodeCacheError,
	}

	for err, expectedCode := range predefinedErrors {
		if err.Code != expectedCode {
			t.Errorf("Error %s: expected code %d, got %d", err.Message, expectedCode, err.Code)
		}
	}
}
