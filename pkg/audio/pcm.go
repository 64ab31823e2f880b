// Package audio 提供浏览器采集音频与识别引擎之间的帧编解码。
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// SampleRate 识别引擎约定的采样率
	SampleRate = 16000
	// BitsPerSample 每个采样的位数
	BitsPerSample = 16
	// Channels 声道数（单声道）
	Channels = 1
)

// DecodeError 表示客户端发送的音频帧无法解码
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodePCM16 将 [-1, 1] 范围的浮点采样转换为小端 16 位有符号 PCM。
// 超出范围的值先裁剪；负值按 0x8000 缩放，正值按 0x7FFF 缩放。
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// PCM16ToFloat 是 EncodePCM16 的逆变换，多余的奇数字节会被忽略。
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if v < 0 {
			out[i] = float32(v) / 0x8000
		} else {
			out[i] = float32(v) / 0x7fff
		}
	}
	return out
}

// EncodeFrame 将 PCM 帧编码为 WebSocket 传输用的 base64 字符串
func EncodeFrame(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeFrame 解码客户端 audio 消息里的 base64 负载，原样返回 PCM 字节。
func DecodeFrame(encoded string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return pcm, nil
}

func floatToInt16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7fff)
}
