package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/arwa/internal/model/speech"
)

const defaultSpeechHost = "wss://openspeech.bytedance.com"

// credentials 火山引擎语音鉴权信息
type credentials struct {
	appID string
	token string
}

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (credentials, error) {
	if cfg == nil {
		return credentials{}, fmt.Errorf("火山引擎语音配置未初始化")
	}

	creds := credentials{
		appID: strings.TrimSpace(cfg.AppID),
		token: strings.TrimSpace(cfg.AccessToken),
	}
	if creds.token == "" {
		creds.token = strings.TrimSpace(cfg.APIKey)
	}

	if creds.appID == "" || creds.token == "" {
		return credentials{}, fmt.Errorf("火山引擎语音配置缺少 AppID 或 AccessToken")
	}
	return creds, nil
}

// header 构造握手请求头
func (c credentials) header(resourceID, connectID string) http.Header {
	header := http.Header{}
	header.Set("X-Api-App-Key", c.appID)
	header.Set("X-Api-Access-Key", c.token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)
	return header
}

// endpoint 拼接服务地址，BaseURL 可覆盖默认主机（测试或私有化部署）
func endpoint(cfg *speechmodel.SpeechConfig, path string) string {
	base := defaultSpeechHost
	if cfg != nil && strings.TrimSpace(cfg.BaseURL) != "" {
		base = strings.TrimSpace(cfg.BaseURL)
	}
	return strings.TrimRight(base, "/") + path
}

// dial 建立 WebSocket 连接；握手被拒时返回 *handshakeError
func dial(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, resp, &handshakeError{status: resp.StatusCode, logID: resp.Header.Get("X-Tt-Logid")}
		}
		return nil, resp, err
	}
	return conn, resp, nil
}

type handshakeError struct {
	status int
	logID  string
}

func (e *handshakeError) Error() string {
	if e.logID != "" {
		return fmt.Sprintf("websocket handshake rejected: status %d (logid %s)", e.status, e.logID)
	}
	return fmt.Sprintf("websocket handshake rejected: status %d", e.status)
}

func (e *handshakeError) unauthorized() bool {
	return e.status == http.StatusUnauthorized || e.status == http.StatusForbidden
}

// writeMessage 编码并以二进制帧写出
func writeMessage(conn *websocket.Conn, msg *Message) error {
	frame, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

// readMessage 读取并解码下一帧
func readMessage(conn *websocket.Conn) (*Message, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	msg, err := DecodeMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}
