package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎流式识别二进制帧：
//
//	byte0: 协议版本(4) | header 长度/4 (4)
//	byte1: 消息类型(4) | 标志位(4)
//	byte2: 序列化方式(4) | 压缩方式(4)
//	byte3: 保留
//	[sequence int32]  标志位携带序号时存在
//	[error code u32]  仅错误消息
//	payload size u32 + payload
const protocolVersion = 0b0001

// MessageType 消息类型
type MessageType uint8

const (
	FullClientRequest  MessageType = 0b0001
	AudioOnlyRequest   MessageType = 0b0010
	FullServerResponse MessageType = 0b1001
	ServerAck          MessageType = 0b1011
	ErrorMessage       MessageType = 0b1111
)

// MessageFlags 序号相关标志位
type MessageFlags uint8

const (
	NoSequence       MessageFlags = 0b0000
	PositiveSequence MessageFlags = 0b0001
	LastNoSequence   MessageFlags = 0b0010
	NegativeSequence MessageFlags = 0b0011
)

// Serialization 负载序列化方式
type Serialization uint8

const (
	RawSerialization  Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

// Compression 负载压缩方式
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

// Frame 一条完整的协议消息
type Frame struct {
	Type          MessageType
	Flags         MessageFlags
	Serialization Serialization
	Compression   Compression
	Sequence      int32
	ErrorCode     uint32
	Payload       []byte
}

func (f *Frame) hasSequence() bool {
	return f.Flags == PositiveSequence || f.Flags == NegativeSequence
}

// IsLast 服务端用负序号或 LastNoSequence 标记最后一包
func (f *Frame) IsLast() bool {
	return f.Flags == LastNoSequence || f.Flags == NegativeSequence
}

// Encode 序列化为 WebSocket 二进制消息
func (f *Frame) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 12+len(f.Payload)))
	buf.WriteByte(protocolVersion<<4 | 0b0001)
	buf.WriteByte(uint8(f.Type)<<4 | uint8(f.Flags))
	buf.WriteByte(uint8(f.Serialization)<<4 | uint8(f.Compression))
	buf.WriteByte(0)

	word := make([]byte, 4)
	if f.hasSequence() {
		binary.BigEndian.PutUint32(word, uint32(f.Sequence))
		buf.Write(word)
	}
	if f.Type == ErrorMessage {
		binary.BigEndian.PutUint32(word, f.ErrorCode)
		buf.Write(word)
	}
	binary.BigEndian.PutUint32(word, uint32(len(f.Payload)))
	buf.Write(word)
	buf.Write(f.Payload)
	return buf.Bytes()
}

// DecodeFrame 解析服务端消息，负载保持压缩状态
func DecodeFrame(data []byte) (*Frame, error) {
	r := bytes.NewReader(data)

	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version := header[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	// header 可能带扩展字段，按声明的长度跳过
	if extra := int(header[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("skip extended header: %w", err)
		}
	}

	f := &Frame{
		Type:          MessageType(header[1] >> 4),
		Flags:         MessageFlags(header[1] & 0x0F),
		Serialization: Serialization(header[2] >> 4),
		Compression:   Compression(header[2] & 0x0F),
	}

	readWord := func(what string) (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return 0, fmt.Errorf("read %s: %w", what, err)
		}
		return v, nil
	}

	if f.hasSequence() {
		seq, err := readWord("sequence")
		if err != nil {
			return nil, err
		}
		f.Sequence = int32(seq)
	}
	if f.Type == ErrorMessage {
		code, err := readWord("error code")
		if err != nil {
			return nil, err
		}
		f.ErrorCode = code
	}

	size, err := readWord("payload size")
	if err != nil {
		return nil, err
	}
	if int64(size) > int64(r.Len()) {
		return nil, fmt.Errorf("payload truncated: declared %d, have %d", size, r.Len())
	}
	f.Payload = make([]byte, size)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return f, nil
}

// newFullClientRequest 建连后的首包，携带 JSON 识别参数
func newFullClientRequest(payload []byte) (*Frame, error) {
	compressed, err := gzipPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:          FullClientRequest,
		Flags:         PositiveSequence,
		Serialization: JSONSerialization,
		Compression:   GzipCompression,
		Sequence:      1,
		Payload:       compressed,
	}, nil
}

// newAudioRequest 音频包；最后一包使用负序号
func newAudioRequest(pcm []byte, sequence int32, last bool) (*Frame, error) {
	compressed, err := gzipPayload(pcm)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		Type:          AudioOnlyRequest,
		Flags:         PositiveSequence,
		Serialization: RawSerialization,
		Compression:   GzipCompression,
		Sequence:      sequence,
		Payload:       compressed,
	}
	if last {
		f.Flags = NegativeSequence
		f.Sequence = -sequence
	}
	return f, nil
}

// DecodedPayload 返回解压后的负载
func (f *Frame) DecodedPayload() ([]byte, error) {
	switch f.Compression {
	case NoCompression:
		return f.Payload, nil
	case GzipCompression:
		return gunzipPayload(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.Compression)
	}
}

func gzipPayload(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipPayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}
