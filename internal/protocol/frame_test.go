package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestFrameRoundtrip(t *testing.T) {
	body := []byte(`{"event":"message:send","payload":{"content":"hi"}}`)
	frame := EncodeFrame(MsgTypeEvent, body)

	if len(frame) != HeaderSize+len(body) {
		t.Fatalf("Expected frame length %d, got %d", HeaderSize+len(body), len(frame))
	}

	msgType, got, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	if msgType != MsgTypeEvent {
		t.Errorf("Expected msg type %d, got %d", MsgTypeEvent, msgType)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("Body mismatch: %s", got)
	}
}

func TestFrameRoundtrip_EmptyBody(t *testing.T) {
	frame := EncodeFrame(MsgTypeHeartbeat, nil)

	msgType, body, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	if msgType != MsgTypeHeartbeat {
		t.Errorf("Expected heartbeat type, got %d", msgType)
	}
	if len(body) != 0 {
		t.Errorf("Expected empty body, got %d bytes", len(body))
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header[:4], MaxFrameSize+1)

	if _, _, err := ReadFrame(bytes.NewReader(header)); err == nil {
		t.Error("Expected error for oversized frame")
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	frame := EncodeFrame(MsgTypeEvent, []byte(`{"event":"x"}`))

	if _, _, err := ReadFrame(bytes.NewReader(frame[:len(frame)-3])); err == nil {
		t.Error("Expected error for truncated frame")
	}
}
