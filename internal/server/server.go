// Package server WebTransport 接入层。
// 每个会话先做首帧认证，之后同一条双向流承载全部入站事件，
// 每个事件提交到 worker 池异步处理。
package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/mrcoder57/chat-express/internal/config"
	"github.com/mrcoder57/chat-express/internal/connection"
	apperrors "github.com/mrcoder57/chat-express/internal/errors"
	"github.com/mrcoder57/chat-express/internal/orchestrator"
	"github.com/mrcoder57/chat-express/internal/protocol"
	"github.com/mrcoder57/chat-express/internal/workerpool"
)

type Server struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	pool     *workerpool.Pool
	wtServer *webtransport.Server
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func New(cfg *config.Config, orch *orchestrator.Orchestrator, pool *workerpool.Pool) *Server {
	return &Server{
		cfg:    cfg,
		orch:   orch,
		pool:   pool,
		logger: slog.Default(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	tlsConfig, err := s.loadTLSConfig()
	if err != nil {
		return err
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:     s.cfg.QUIC.MaxIdleTimeout,
		KeepAlivePeriod:    s.cfg.QUIC.KeepAlivePeriod,
		MaxIncomingStreams: s.cfg.QUIC.MaxIncomingStreams,
		EnableDatagrams:    true, // WebTransport 需要启用数据报支持
	}

	s.wtServer = &webtransport.Server{
		H3: http3.Server{
			Addr:       s.cfg.Server.Addr,
			TLSConfig:  tlsConfig,
			QUICConfig: quicConfig,
		},
		CheckOrigin: func(r *http.Request) bool {
			// TODO: 生产环境应该检查 Origin
			return true
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		session, err := s.wtServer.Upgrade(w, r)
		if err != nil {
			s.logger.Error("WebTransport upgrade failed", "error", err)
			return
		}
		s.wg.Add(1)
		go s.handleSession(ctx, session)
	})

	s.wtServer.H3.Handler = mux

	s.logger.Info("WebTransport server starting", "addr", s.cfg.Server.Addr)
	return s.wtServer.ListenAndServe()
}

func (s *Server) handleSession(ctx context.Context, session *webtransport.Session) {
	defer s.wg.Done()

	conn := connection.NewFromWebTransport(session, s.logger)
	defer conn.Close()

	// 首个 stream 的首帧必须是认证请求
	stream, err := session.AcceptStream(ctx)
	if err != nil {
		return
	}

	if err := s.authenticate(ctx, conn, stream); err != nil {
		s.logger.Warn("Auth failed, closing session", "connId", conn.ID(), "error", err)
		if err := session.CloseWithError(4001, "auth failed"); err != nil {
			s.logger.Error("Failed to close session", "connId", conn.ID(), "error", err)
		}
		return
	}

	// 认证成功后同一条流承载全部入站事件，阻塞直到流关闭
	s.readLoop(ctx, conn, stream)

	s.orch.HandleDisconnect(ctx, conn)
}

// authenticate 读取并校验首帧
// 认证通过前不接受任何其他帧，也不会有任何状态写入
func (s *Server) authenticate(ctx context.Context, conn *connection.Connection, stream *webtransport.Stream) error {
	msgType, body, err := protocol.ReadFrame(stream)
	if err != nil {
		return err
	}
	if msgType != protocol.MsgTypeAuth {
		return apperrors.ErrTokenMissing
	}

	var frame protocol.AuthFrame
	if err := json.Unmarshal(body, &frame); err != nil {
		return apperrors.ErrTokenInvalid.Wrap(err)
	}

	userID, err := s.orch.HandleConnect(ctx, conn, frame.Token)
	if err != nil {
		ack, _ := json.Marshal(&protocol.AuthAckFrame{
			Code:    apperrors.GetCode(err),
			Message: apperrors.GetMessage(err),
		})
		if _, writeErr := stream.Write(protocol.EncodeFrame(protocol.MsgTypeAuthAck, ack)); writeErr != nil {
			s.logger.Debug("Failed to write auth nack", "connId", conn.ID(), "error", writeErr)
		}
		return err
	}

	conn.BindUser(userID)

	ack, _ := json.Marshal(&protocol.AuthAckFrame{Code: 0, UserID: userID, Message: "success"})
	if _, err := stream.Write(protocol.EncodeFrame(protocol.MsgTypeAuthAck, ack)); err != nil {
		return err
	}
	return nil
}

func (s *Server) readLoop(ctx context.Context, conn *connection.Connection, stream *webtransport.Stream) {
	for {
		msgType, body, err := protocol.ReadFrame(stream)
		if err != nil {
			s.logger.Debug("Stream closed", "connId", conn.ID(), "error", err)
			return
		}

		switch msgType {
		case protocol.MsgTypeHeartbeat:
			s.orch.HandleHeartbeat(ctx, conn)
			if err := conn.Send(protocol.EncodeFrame(protocol.MsgTypeHeartbeat, nil)); err != nil {
				return
			}
		case protocol.MsgTypeEvent:
			frame := body
			if !s.pool.TrySubmit(func() { s.dispatch(ctx, conn, frame) }) {
				s.logger.Warn("Event worker queue full, dropping event", "connId", conn.ID(), "queueDepth", s.pool.Len())
			}
		default:
			s.logger.Warn("Unknown message type", "connId", conn.ID(), "msgType", msgType)
		}
	}
}

// dispatch 解析事件帧并路由到 orchestrator
// 单个事件的失败不影响连接上的后续事件
func (s *Server) dispatch(ctx context.Context, conn *connection.Connection, body []byte) {
	var frame protocol.EventFrame
	if err := json.Unmarshal(body, &frame); err != nil {
		s.logger.Warn("Malformed event frame", "connId", conn.ID(), "error", err)
		return
	}

	var err error
	switch frame.Event {
	case orchestrator.EventJoinChat:
		var conversationID string
		if err = json.Unmarshal(frame.Payload, &conversationID); err == nil {
			err = s.orch.HandleJoin(ctx, conn, conversationID)
		}
	case orchestrator.EventMessageSend:
		var payload orchestrator.SendMessagePayload
		if err = json.Unmarshal(frame.Payload, &payload); err == nil {
			err = s.orch.HandleSendMessage(ctx, conn, &payload)
		}
	case orchestrator.EventMessageRead:
		var payload orchestrator.ReadPayload
		if err = json.Unmarshal(frame.Payload, &payload); err == nil {
			err = s.orch.HandleRead(ctx, conn, &payload)
		}
	case orchestrator.EventMessagesRead:
		var payload orchestrator.BulkReadPayload
		if err = json.Unmarshal(frame.Payload, &payload); err == nil {
			err = s.orch.HandleBulkRead(ctx, conn, &payload)
		}
	case orchestrator.EventMessageReact:
		var payload orchestrator.ReactPayload
		if err = json.Unmarshal(frame.Payload, &payload); err == nil {
			err = s.orch.HandleReact(ctx, conn, &payload)
		}
	case orchestrator.EventTypingStart, orchestrator.EventTypingStop:
		var conversationID string
		if err = json.Unmarshal(frame.Payload, &conversationID); err == nil {
			err = s.orch.HandleTyping(ctx, conn, conversationID, frame.Event == orchestrator.EventTypingStart)
		}
	default:
		s.logger.Warn("Unknown event", "connId", conn.ID(), "event", frame.Event)
		return
	}

	if err != nil {
		s.logger.Debug("Event handling failed", "connId", conn.ID(), "event", frame.Event, "error", err)
	}
}

func (s *Server) loadTLSConfig() (*tls.Config, error) {
	if s.cfg.Server.CertFile != "" && s.cfg.Server.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.Server.CertFile, s.cfg.Server.KeyFile)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Loaded TLS certificate",
			"certFile", s.cfg.Server.CertFile,
			"keyFile", s.cfg.Server.KeyFile)
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h3", "webtransport"},
			MinVersion:   tls.VersionTLS13,
		}, nil
	}

	// 开发环境：生成自签名证书
	s.logger.Warn("No TLS certificate configured, using self-signed certificate")
	return devTLSConfig()
}

func (s *Server) Shutdown() {
	if s.wtServer != nil {
		s.wtServer.Close()
	}
	s.wg.Wait()
}
