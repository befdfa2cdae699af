// Package protocol 连接上的帧格式。
// 每帧以 6 字节头开始：4 字节大端消息体长度 + 2 字节消息类型，
// 消息体是 JSON。
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	HeaderSize = 6 // 4 bytes length + 2 bytes msg type

	// MaxFrameSize 单帧消息体上限
	MaxFrameSize = 1 << 20

	// 消息类型
	MsgTypeHeartbeat uint16 = 0
	MsgTypeAuth      uint16 = 1
	MsgTypeAuthAck   uint16 = 2
	MsgTypeEvent     uint16 = 10
)

// AuthFrame 首帧认证请求体
type AuthFrame struct {
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
}

// AuthAckFrame 认证应答体
type AuthAckFrame struct {
	Code    int    `json:"code"`
	UserID  int64  `json:"userId,omitempty"`
	Message string `json:"message"`
}

// EventFrame 双向事件帧体
type EventFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEventBody 编码一个事件帧体
func NewEventBody(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&EventFrame{Event: event, Payload: data})
}

// EncodeFrame 编码一个完整的帧
func EncodeFrame(msgType uint16, body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(body)))
	binary.BigEndian.PutUint16(buf[4:6], msgType)
	copy(buf[HeaderSize:], body)
	return buf
}

// ReadFrame 从流中读取一个完整的帧
func ReadFrame(r io.Reader) (uint16, []byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(header[:4])
	msgType := binary.BigEndian.Uint16(header[4:6])

	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("frame body too large: %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return msgType, body, nil
}
