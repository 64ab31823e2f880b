package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV 输入不是 RIFF/WAVE 文件
var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// WAVFormat 描述 fmt 块中与 PCM 相关的字段
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ReadWAV 逐块扫描 WAV 文件，返回 fmt 信息与 data 块中的 PCM 字节。
// 只接受 16 位单声道 PCM，这是识别引擎唯一支持的帧格式。
func ReadWAV(data []byte) (WAVFormat, []byte, error) {
	var format WAVFormat
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return format, nil, ErrNotWAV
	}

	var pcm []byte
	haveFmt := false
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return format, nil, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			chunk := data[body : body+size]
			format = WAVFormat{
				AudioFormat:   binary.LittleEndian.Uint16(chunk[0:2]),
				Channels:      binary.LittleEndian.Uint16(chunk[2:4]),
				SampleRate:    binary.LittleEndian.Uint32(chunk[4:8]),
				BitsPerSample: binary.LittleEndian.Uint16(chunk[14:16]),
			}
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// 块按偶数字节对齐
		offset = body + size + size%2
	}

	if !haveFmt {
		return format, nil, errors.New("missing fmt chunk")
	}
	if pcm == nil {
		return format, nil, errors.New("missing data chunk")
	}
	if format.AudioFormat != 1 {
		return format, nil, fmt.Errorf("unsupported audio format %d (only PCM)", format.AudioFormat)
	}
	if format.BitsPerSample != BitsPerSample || format.Channels != Channels {
		return format, nil, fmt.Errorf("unsupported layout: %d-bit %d-channel (need 16-bit mono)", format.BitsPerSample, format.Channels)
	}
	return format, pcm, nil
}
