// Package voicechat serves one conversation per websocket connection.
package voicechat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/conversation"
	"github.com/zhouzirui/arwa/internal/service/speech"
)

const (
	writeWait    = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// PlatformFactory 为每个连接构建语音平台。source 接收客户端上传的音频，
// sink 把合成音频推回客户端。
type PlatformFactory func(source speech.AudioSource, sink speech.AudioSink) speech.Platform

// Handler websocket 会话处理器
type Handler struct {
	chat        conversation.ChatService
	platforms   PlatformFactory
	adapterOpts speech.AdapterOptions
	conns       *ConnectionManager
	upgrader    websocket.Upgrader
	logger      *zap.Logger

	pingInterval time.Duration
	readTimeout  time.Duration
}

// New 创建处理器。platforms 为 nil 时语音能力不可用。
func New(chat conversation.ChatService, platforms PlatformFactory, opts speech.AdapterOptions, conns *ConnectionManager, logger *zap.Logger) *Handler {
	if conns == nil {
		conns = NewConnectionManager()
	}
	return &Handler{
		chat:        chat,
		platforms:   platforms,
		adapterOpts: opts,
		conns:       conns,
		logger:      logger.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
	}
}

// RegisterRoutes 注册 websocket 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextData send / draft 消息体
type TextData struct {
	Text string `json:"text"`
}

// AudioData 客户端上传的音频分片，audioData 为 base64
type AudioData struct {
	AudioData []byte `json:"audioData"`
	IsFinal   bool   `json:"isFinal"`
}

// TTSData 合成音频
type TTSData struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// 消息类型
const (
	TypeNewChat      = "new_chat"
	TypeSend         = "send"
	TypeDraft        = "draft"
	TypeToggleVoice  = "toggle_voice"
	TypeDismissError = "dismiss_error"
	TypeAudio        = "audio"

	TypeState = "state"
	TypeTTS   = "tts"
	TypeError = "error"
)

// client 串行化同一连接上的写操作
type client struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *zap.Logger
}

func (c *client) send(msgType string, data any) error {
	msg := outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("write failed", zap.String("type", msgType), zap.Error(err))
		return err
	}
	return nil
}

func (c *client) sendError(message string) {
	_ = c.send(TypeError, map[string]string{"message": message})
}

// handleWebSocket 处理 websocket 连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	cl := &client{id: uuid.NewString(), conn: conn}
	cl.logger = h.logger.With(zap.String("conn", cl.id))
	h.conns.Add(cl.id, conn)
	defer h.conns.Remove(cl.id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := speech.NewPipeSource()
	defer source.CloseInput()

	var platform speech.Platform
	if h.platforms != nil {
		sink := speech.FuncSink(func(_ context.Context, audio []byte, format string) error {
			return cl.send(TypeTTS, TTSData{AudioData: audio, Format: format})
		})
		platform = h.platforms(source, sink)
	}
	adapter := speech.NewAdapter(platform, h.adapterOpts, cl.logger)

	ctrl := conversation.New(h.chat, adapter, func(s conversation.State) {
		_ = cl.send(TypeState, s)
	}, cl.logger)
	defer ctrl.Close()

	cl.logger.Info("connection opened", zap.String("remote", r.RemoteAddr))

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	go h.pingLoop(ctx, cl)

	ctrl.Start(ctx)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if isDecodeError(err) {
				cl.sendError("invalid message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.logger.Debug("read error", zap.Error(err))
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		h.handleMessage(ctx, cl, ctrl, source, &msg)
	}

	cl.logger.Info("connection closed")
}

// handleMessage 分发客户端消息
func (h *Handler) handleMessage(ctx context.Context, cl *client, ctrl *conversation.Controller, source *speech.PipeSource, msg *inboundMessage) {
	switch msg.Type {
	case TypeNewChat:
		ctrl.NewConversation(ctx)
	case TypeSend:
		var data TextData
		if !h.decode(cl, msg, &data) {
			return
		}
		ctrl.Send(data.Text)
	case TypeDraft:
		var data TextData
		if !h.decode(cl, msg, &data) {
			return
		}
		ctrl.SetDraft(data.Text)
	case TypeToggleVoice:
		// 等待回复时麦克风不可用，不支持时交给控制器提示
		if s := ctrl.Snapshot(); s.RecognitionSupported && !s.CanToggleVoice() {
			return
		}
		ctrl.ToggleVoice()
	case TypeDismissError:
		ctrl.DismissError()
	case TypeAudio:
		var data AudioData
		if !h.decode(cl, msg, &data) {
			return
		}
		if len(data.AudioData) > 0 {
			if _, err := source.Write(data.AudioData); err != nil {
				cl.logger.Debug("audio write failed", zap.Error(err))
			}
		}
		if data.IsFinal {
			source.CloseInput()
		}
	default:
		cl.sendError("unsupported message type: " + msg.Type)
	}
}

// isDecodeError 消息格式错误，连接仍可继续使用
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (h *Handler) decode(cl *client, msg *inboundMessage, v any) bool {
	if len(msg.Data) == 0 {
		cl.sendError("missing data for " + msg.Type)
		return false
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		cl.sendError("invalid data for " + msg.Type)
		return false
	}
	return true
}

// pingLoop 定期发送 ping
func (h *Handler) pingLoop(ctx context.Context, cl *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
