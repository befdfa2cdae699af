package auth

import (
	"testing"
	"time"

	apperrors "github.com/mrcoder57/chat-express/internal/errors"
)

func TestGenerateAndVerify(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	token, err := service.Generate(12345, "device-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("Token should not be empty")
	}

	claims, err := service.Verify(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if claims.UserID != 12345 {
		t.Errorf("Expected UserID 12345, got %d", claims.UserID)
	}
	if claims.DeviceID != "device-123" {
		t.Errorf("Expected DeviceID device-123, got %s", claims.DeviceID)
	}
}

func TestVerify_Empty(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)

	_, err := service.Verify("")
	if !apperrors.Is(err, apperrors.ErrTokenMissing) {
		t.Errorf("Expected ErrTokenMissing, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	service := NewService("test-secret-key", -time.Minute)

	token, err := service.Generate(12345, "device-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	_, err = service.Verify(token)
	if !apperrors.Is(err, apperrors.ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	service := NewService("test-secret-key", time.Hour)
	other := NewService("another-secret", time.Hour)

	token, err := service.Generate(12345, "device-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	_, err = other.Verify(token)
	if !apperrors.Is(err, apperrors.ErrTokenInvalid) {
		t.Errorf("Expected ErrTokenInvalid, got %v", err)
	}
}
