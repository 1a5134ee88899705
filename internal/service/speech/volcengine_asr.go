package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/arwa/internal/model/speech"
)

const (
	asrStreamPath = "/api/v3/sauc/bigmodel_async"

	// 16kHz, 16bit, mono, 200ms = 6400 bytes
	asrChunkSize = 6400
	// FullClientRequest 占用序号1，音频从2开始
	asrFirstAudioSequence = 2

	asrSuccessCode = 20000000
)

// 服务端返回的“无有效语音”类错误码
var asrNoSpeechCodes = map[int]struct{}{
	20000002: {},
	20000003: {},
	45000002: {},
	45000081: {},
}

// VolcengineASRClient 火山引擎流式ASR客户端
type VolcengineASRClient struct {
	config    *speech.SpeechConfig
	dialer    *websocket.Dialer
	logger    *zap.Logger
	stopGrace time.Duration
}

// NewVolcengineASRClient 创建火山引擎ASR客户端
func NewVolcengineASRClient(config *speech.SpeechConfig, logger *zap.Logger) *VolcengineASRClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VolcengineASRClient{
		config:    config,
		dialer:    &websocket.Dialer{HandshakeTimeout: timeout},
		logger:    logger.Named("asr"),
		stopGrace: 3 * time.Second,
	}
}

// asrRequest 火山引擎ASR请求结构（按文档格式）
type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
}

func (c *VolcengineASRClient) buildRequest(opts speech.RecognitionOptions) *asrRequest {
	req := &asrRequest{}
	req.User.UID = opts.SessionID

	req.Audio.Language = opts.Language
	if req.Audio.Language == "" {
		req.Audio.Language = c.config.ASRLanguage
	}
	req.Audio.Format = "pcm"
	req.Audio.Codec = "raw"
	req.Audio.Rate = 16000
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	if !opts.Continuous {
		// 非连续模式下更快判停
		req.Request.EndWindowSize = 800
	}
	return req
}

func (c *VolcengineASRClient) resourceID() string {
	if c.config.ConcurrentMode {
		return "volc.bigasr.sauc.concurrent" // 并发版
	}
	return "volc.bigasr.sauc.duration" // 小时版
}

// Stream 打开音源并建立识别会话。握手或音源失败返回 *speech.RecognitionError。
func (c *VolcengineASRClient) Stream(ctx context.Context, source AudioSource, opts speech.RecognitionOptions) (RecognitionStream, error) {
	creds, err := resolveCredentials(c.config)
	if err != nil {
		return nil, &speech.RecognitionError{Code: speech.CodeServiceNotAllowed, Message: err.Error()}
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}

	streamCtx, cancel := context.WithCancel(ctx)

	audio, err := source.Open(streamCtx)
	if err != nil {
		cancel()
		return nil, &speech.RecognitionError{Code: speech.CodeAudioCapture, Message: err.Error()}
	}

	conn, resp, err := dial(streamCtx, c.dialer, endpoint(c.config, asrStreamPath), creds.header(c.resourceID(), opts.SessionID))
	if err != nil {
		cancel()
		audio.Close()
		var hsErr *handshakeError
		if errors.As(err, &hsErr) && hsErr.unauthorized() {
			return nil, &speech.RecognitionError{Code: speech.CodeNotAllowed, Message: err.Error()}
		}
		return nil, &speech.RecognitionError{Code: speech.CodeNetwork, Message: err.Error()}
	}

	logger := c.logger.With(zap.String("stream", opts.SessionID))
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			logger.Debug("connected", zap.String("logid", logid))
		}
	}

	payload, err := encodeJSONPayload(c.buildRequest(opts), GzipCompression)
	if err == nil {
		err = writeMessage(conn, NewFullClientRequest(payload, GzipCompression))
	}
	if err != nil {
		cancel()
		audio.Close()
		conn.Close()
		return nil, &speech.RecognitionError{Code: speech.CodeNetwork, Message: err.Error()}
	}

	s := &asrStream{
		id:        opts.SessionID,
		conn:      conn,
		audio:     audio,
		events:    make(chan speech.TranscriptEvent, 32),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		cancel:    cancel,
		logger:    logger,
		stopGrace: c.stopGrace,
	}
	go s.sendLoop(streamCtx)
	go s.recvLoop()

	logger.Info("recognition started", zap.String("language", opts.Language))
	return s, nil
}

// asrStream 一次识别会话。事件只由 recvLoop 产生；终止事件经 finish 发出后关闭通道。
type asrStream struct {
	id     string
	conn   *websocket.Conn
	audio  io.ReadCloser
	events chan speech.TranscriptEvent

	stopCh     chan struct{}
	stopOnce   sync.Once
	finishOnce sync.Once
	done       chan struct{}

	mu     sync.Mutex
	closed bool

	cancel    context.CancelFunc
	logger    *zap.Logger
	stopGrace time.Duration

	finals      int
	lastPartial string
}

func (s *asrStream) ID() string { return s.id }

func (s *asrStream) Events() <-chan speech.TranscriptEvent { return s.events }

// Stop 结束音频输入并等待服务端最后一包，超时后直接结束。
func (s *asrStream) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		_ = s.audio.Close()
		go func() {
			timer := time.NewTimer(s.stopGrace)
			defer timer.Stop()
			select {
			case <-s.done:
			case <-timer.C:
				s.logger.Debug("no final packet before grace period")
				s.finish(speech.TranscriptEvent{Kind: speech.EventEnd})
			}
		}()
	})
	return nil
}

func (s *asrStream) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *asrStream) emit(ev speech.TranscriptEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

func (s *asrStream) finish(ev speech.TranscriptEvent) {
	s.finishOnce.Do(func() {
		if ev.Kind == speech.EventError {
			s.logger.Warn("recognition failed", zap.String("code", ev.Err.Code), zap.String("message", ev.Err.Message))
		} else {
			s.logger.Info("recognition ended")
		}

		s.mu.Lock()
		s.events <- ev
		close(s.events)
		s.closed = true
		close(s.done)
		s.mu.Unlock()

		s.cancel()
		_ = s.audio.Close()
		_ = s.conn.Close()
	})
}

func (s *asrStream) fail(code, message string) {
	s.finish(speech.TranscriptEvent{Kind: speech.EventError, Err: &speech.RecognitionError{Code: code, Message: message}})
}

// sendLoop 按 200ms 分包上传音频，结束时发送负序号的最后一包
func (s *asrStream) sendLoop(ctx context.Context) {
	buf := make([]byte, asrChunkSize)
	sequence := int32(asrFirstAudioSequence)

	send := func(chunk []byte, last bool) bool {
		compressed, err := compressPayload(chunk, GzipCompression)
		if err == nil {
			err = writeMessage(s.conn, NewAudioOnlyRequest(compressed, sequence, last, GzipCompression))
		}
		if err != nil {
			if ctx.Err() == nil {
				s.fail(speech.CodeNetwork, fmt.Sprintf("failed to send audio chunk: %v", err))
			}
			return false
		}
		sequence++
		return true
	}

	for {
		n, err := io.ReadFull(s.audio, buf)
		if n > 0 && !s.stopping() {
			if !send(buf[:n], false) {
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || s.stopping() {
				send(nil, true)
				return
			}
			s.fail(speech.CodeAudioCapture, err.Error())
			return
		}
		if s.stopping() {
			send(nil, true)
			return
		}
	}
}

func (s *asrStream) recvLoop() {
	for {
		msg, err := readMessage(s.conn)
		if err != nil {
			if s.stopping() {
				s.finish(speech.TranscriptEvent{Kind: speech.EventEnd})
				return
			}
			s.fail(speech.CodeNetwork, err.Error())
			return
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, _ := msg.payload()
			s.failWithServerCode(int(msg.ErrorCode), string(payload))
			return

		case FullServerResponse:
			payload, err := msg.payload()
			if err != nil {
				s.fail(speech.CodeNetwork, fmt.Sprintf("failed to decompress ASR payload: %v", err))
				return
			}

			var serverResp asrServerMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &serverResp); err != nil {
					s.logger.Debug("failed to unmarshal response", zap.Error(err))
					continue
				}
			}
			if serverResp.Code != 0 && serverResp.Code != asrSuccessCode {
				s.failWithServerCode(serverResp.Code, serverResp.Message)
				return
			}

			s.publish(serverResp.Result.Text, serverResp.Result.Utterances)

			if msg.IsLastPacket() || serverResp.Sequence < 0 {
				s.finish(speech.TranscriptEvent{Kind: speech.EventEnd})
				return
			}

		default:
			// 其他类型（如音频ACK）直接忽略
		}
	}
}

// publish 将新出现的确定分句作为 Final，未确定的尾部作为 Partial
func (s *asrStream) publish(text string, utterances []asrUtterance) {
	if len(utterances) == 0 {
		if text != "" && text != s.lastPartial {
			s.lastPartial = text
			s.emit(speech.TranscriptEvent{Kind: speech.EventPartial, Text: text})
		}
		return
	}

	definite := 0
	var pending []string
	for _, u := range utterances {
		if !u.Definite {
			if u.Text != "" {
				pending = append(pending, u.Text)
			}
			continue
		}
		definite++
		if definite > s.finals {
			s.finals = definite
			s.lastPartial = ""
			s.emit(speech.TranscriptEvent{Kind: speech.EventFinal, Text: u.Text})
		}
	}

	if partial := strings.Join(pending, " "); partial != "" && partial != s.lastPartial {
		s.lastPartial = partial
		s.emit(speech.TranscriptEvent{Kind: speech.EventPartial, Text: partial})
	}
}

func (s *asrStream) failWithServerCode(code int, message string) {
	if message == "" {
		message = "ASR API error " + strconv.Itoa(code)
	}
	if _, ok := asrNoSpeechCodes[code]; ok {
		s.fail(speech.CodeNoSpeech, message)
		return
	}
	s.fail(speech.CodeNetwork, message)
}
