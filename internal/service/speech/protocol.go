package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎语音 WebSocket 二进制帧格式：
//
//	header(4) | sequence(4)? | event(4) session(4+n)? connect(4+n)? | error code(4)? | payload size(4) | payload
const protocolVersion = 0b0001

// MessageType 消息类型
type MessageType uint8

const (
	// FullClientRequest 包含请求参数的完整客户端请求
	FullClientRequest MessageType = 0b0001
	// AudioOnlyRequest 只包含音频数据的请求
	AudioOnlyRequest MessageType = 0b0010
	// FullServerResponse 服务端返回的完整响应
	FullServerResponse MessageType = 0b1001
	// AudioOnlyServerResponse 只包含音频数据的服务端响应
	AudioOnlyServerResponse MessageType = 0b1011
	// ErrorMessage 服务端错误消息
	ErrorMessage MessageType = 0b1111
)

// MessageFlags 消息特定标志，低两位描述 sequence，第三位表示携带事件
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	LastPacketNoSequence   MessageFlags = 0b0010
	NegativeSequenceNumber MessageFlags = 0b0011
	WithEvent              MessageFlags = 0b0100

	sequenceMask MessageFlags = 0b0011
)

// EventType 服务端事件
type EventType int32

const (
	EventTypeNone               EventType = 0
	EventTypeStartConnection    EventType = 1
	EventTypeFinishConnection   EventType = 2
	EventTypeConnectionStarted  EventType = 50
	EventTypeConnectionFailed   EventType = 51
	EventTypeConnectionFinished EventType = 52
	EventTypeSessionStarted     EventType = 150
	EventTypeSessionFinished    EventType = 152
	EventTypeSessionFailed      EventType = 153
)

// SerializationMethod 序列化方法
type SerializationMethod uint8

const (
	NoSerialization     SerializationMethod = 0b0000
	JSONSerialization   SerializationMethod = 0b0001
	CustomSerialization SerializationMethod = 0b1111
)

// CompressionMethod 压缩方法
type CompressionMethod uint8

const (
	NoCompression     CompressionMethod = 0b0000
	GzipCompression   CompressionMethod = 0b0001
	CustomCompression CompressionMethod = 0b1111
)

// Header 帧头，每个字段占 4 bit，Reserved 占 8 bit
type Header struct {
	ProtocolVersion     uint8
	HeaderSize          uint8 // 以 4 字节为单位
	MessageType         MessageType
	MessageFlags        MessageFlags
	SerializationMethod SerializationMethod
	CompressionMethod   CompressionMethod
	Reserved            uint8
}

// NewHeader 创建 4 字节帧头
func NewHeader(msgType MessageType, flags MessageFlags, serialization SerializationMethod, compression CompressionMethod) Header {
	return Header{
		ProtocolVersion:     protocolVersion,
		HeaderSize:          1,
		MessageType:         msgType,
		MessageFlags:        flags,
		SerializationMethod: serialization,
		CompressionMethod:   compression,
	}
}

func (h Header) bytes() []byte {
	return []byte{
		h.ProtocolVersion<<4 | h.HeaderSize&0x0F,
		uint8(h.MessageType)<<4 | uint8(h.MessageFlags)&0x0F,
		uint8(h.SerializationMethod)<<4 | uint8(h.CompressionMethod)&0x0F,
		h.Reserved,
	}
}

func parseHeader(data []byte) (Header, error) {
	if len(data) < 4 {
		return Header{}, fmt.Errorf("header data too short: got %d, need 4", len(data))
	}

	h := Header{
		ProtocolVersion:     data[0] >> 4,
		HeaderSize:          data[0] & 0x0F,
		MessageType:         MessageType(data[1] >> 4),
		MessageFlags:        MessageFlags(data[1] & 0x0F),
		SerializationMethod: SerializationMethod(data[2] >> 4),
		CompressionMethod:   CompressionMethod(data[2] & 0x0F),
		Reserved:            data[3],
	}
	if h.ProtocolVersion != protocolVersion {
		return Header{}, fmt.Errorf("unsupported protocol version: %d", h.ProtocolVersion)
	}
	if h.HeaderSize == 0 {
		return Header{}, fmt.Errorf("invalid header size 0")
	}
	return h, nil
}

// Message 一帧完整消息
type Message struct {
	Header    Header
	Sequence  int32
	EventType EventType
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (m *Message) hasSequence() bool {
	switch m.Header.MessageFlags & sequenceMask {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		return true
	}
	return false
}

func (m *Message) hasEvent() bool {
	return m.Header.MessageFlags&WithEvent == WithEvent
}

// IsLastPacket 是否为最后一包
func (m *Message) IsLastPacket() bool {
	switch m.Header.MessageFlags & sequenceMask {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	}
	return false
}

// IsErrorMessage 是否为错误消息
func (m *Message) IsErrorMessage() bool {
	return m.Header.MessageType == ErrorMessage
}

// MarshalBinary 编码为一帧
func (m *Message) MarshalBinary() ([]byte, error) {
	size := int(m.Header.HeaderSize) * 4
	if size < 4 {
		return nil, fmt.Errorf("invalid header size %d", m.Header.HeaderSize)
	}

	buf := make([]byte, 0, size+16+len(m.Payload))
	buf = append(buf, m.Header.bytes()...)
	buf = append(buf, make([]byte, size-4)...)

	if m.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(m.Sequence))
	}
	if m.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(m.EventType))
		if !eventSkipsSessionID(m.EventType) {
			buf = appendSized(buf, []byte(m.SessionID))
		}
		if eventHasConnectID(m.EventType) {
			buf = appendSized(buf, []byte(m.ConnectID))
		}
	}
	if m.IsErrorMessage() {
		buf = binary.BigEndian.AppendUint32(buf, m.ErrorCode)
	}

	return appendSized(buf, m.Payload), nil
}

// UnmarshalBinary 解码一帧
func (m *Message) UnmarshalBinary(data []byte) error {
	header, err := parseHeader(data)
	if err != nil {
		return fmt.Errorf("failed to decode header: %w", err)
	}

	r := &frameReader{r: bytes.NewReader(data[4:])}
	r.skip(int(header.HeaderSize)*4-4, "extended header")

	*m = Message{Header: header}
	if m.hasSequence() {
		m.Sequence = int32(r.uint32("sequence"))
	}
	if m.hasEvent() {
		m.EventType = EventType(r.uint32("event type"))
		if !eventSkipsSessionID(m.EventType) {
			m.SessionID = string(r.sized("session id"))
		}
		if eventHasConnectID(m.EventType) {
			m.ConnectID = string(r.sized("connect id"))
		}
	}
	if m.IsErrorMessage() {
		m.ErrorCode = r.uint32("error code")
	}
	m.Payload = r.sized("payload")

	return r.err
}

// DecodeMessage 读取并解码一帧
func DecodeMessage(reader io.Reader) (*Message, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	msg := &Message{}
	if err := msg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewFullClientRequest 创建携带 JSON 参数的完整客户端请求
func NewFullClientRequest(payload []byte, compression CompressionMethod) *Message {
	return &Message{
		Header:  NewHeader(FullClientRequest, NoSequenceNumber, JSONSerialization, compression),
		Payload: payload,
	}
}

// NewAudioOnlyRequest 创建音频包；最后一包使用负数 sequence
func NewAudioOnlyRequest(audio []byte, sequence int32, isLast bool, compression CompressionMethod) *Message {
	flags := NoSequenceNumber
	switch {
	case isLast && sequence != 0:
		flags = NegativeSequenceNumber
		if sequence > 0 {
			sequence = -sequence
		}
	case isLast:
		flags = LastPacketNoSequence
	case sequence > 0:
		flags = PositiveSequenceNumber
	}

	return &Message{
		Header:   NewHeader(AudioOnlyRequest, flags, NoSerialization, compression),
		Sequence: sequence,
		Payload:  audio,
	}
}

func eventSkipsSessionID(event EventType) bool {
	switch event {
	case EventTypeStartConnection, EventTypeFinishConnection,
		EventTypeConnectionStarted, EventTypeConnectionFailed,
		EventTypeConnectionFinished:
		return true
	default:
		return false
	}
}

func eventHasConnectID(event EventType) bool {
	switch event {
	case EventTypeConnectionStarted, EventTypeConnectionFailed, EventTypeConnectionFinished:
		return true
	default:
		return false
	}
}

func appendSized(buf, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// frameReader 顺序读取帧字段，遇到第一个错误后停止
type frameReader struct {
	r   *bytes.Reader
	err error
}

func (fr *frameReader) skip(n int, field string) {
	if fr.err != nil || n <= 0 {
		return
	}
	if _, err := io.CopyN(io.Discard, fr.r, int64(n)); err != nil {
		fr.err = fmt.Errorf("failed to read %s: %w", field, err)
	}
}

func (fr *frameReader) uint32(field string) uint32 {
	if fr.err != nil {
		return 0
	}
	var raw [4]byte
	if _, err := io.ReadFull(fr.r, raw[:]); err != nil {
		fr.err = fmt.Errorf("failed to read %s: %w", field, err)
		return 0
	}
	return binary.BigEndian.Uint32(raw[:])
}

func (fr *frameReader) sized(field string) []byte {
	size := fr.uint32(field + " size")
	if fr.err != nil || size == 0 {
		return nil
	}
	if int64(size) > int64(fr.r.Len()) {
		fr.err = fmt.Errorf("failed to read %s (expected %d bytes, have %d)", field, size, fr.r.Len())
		return nil
	}
	data := make([]byte, size)
	_, _ = io.ReadFull(fr.r, data)
	return data
}
