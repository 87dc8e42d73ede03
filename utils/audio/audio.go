package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"voicedoc/core"

	"github.com/zaf/g711"
)

// PCMBytesToULaw converts 16-bit PCM bytes to µ-law.
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// ULawBytesToPCM converts µ-law bytes to 16-bit PCM bytes.
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// PCMBytesToALaw converts 16-bit PCM bytes to A-law.
func PCMBytesToALaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeAlaw(pcm), nil
}

// ALawBytesToPCM converts A-law bytes to 16-bit PCM bytes.
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// PCMBytesToWavBytes wraps 16-bit little endian PCM into a WAV container.
func PCMBytesToWavBytes(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return nil, err
	}
	if numChannels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		subchunk1Size  = 16
		headerSize     = 44
	)

	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// ValidatePCMData validates PCM byte array for basic integrity
func ValidatePCMData(pcm []byte, numChannels int) error {
	if len(pcm) == 0 {
		return errors.New("PCM data is empty")
	}
	if len(pcm)%2 != 0 {
		return errors.New("PCM data must have even length (16-bit samples)")
	}
	if numChannels <= 0 {
		return errors.New("invalid number of channels")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return errors.New("PCM data length doesn't match channel count")
	}
	return nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// ToPlayableClip converts provider output into a clip a browser can play.
// Raw PCM, µ-law and A-law are decoded and wrapped in WAV; WAV and MP3 pass
// through unchanged.
func ToPlayableClip(data []byte, format core.AudioEncodingFormat, sampleRate, channels int) (*core.AudioClip, error) {
	if len(data) == 0 {
		return nil, errors.New("audio data is empty")
	}
	if channels == 0 {
		channels = 1
	}

	var pcm []byte
	switch format {
	case core.WAV:
		if !IsWAV(data) {
			return nil, errors.New("audio: data is not a WAV file")
		}
		return &core.AudioClip{Data: data, MediaType: core.AudioMediaTypeWAV}, nil
	case core.MP3:
		return &core.AudioClip{Data: data, MediaType: core.AudioMediaTypeMP3}, nil
	case core.PCM:
		pcm = data
	case core.ULAW:
		pcm = ULawBytesToPCM(data)
	case core.ALAW:
		pcm = ALawBytesToPCM(data)
	default:
		return nil, fmt.Errorf("audio: unsupported encoding %d", format)
	}

	wav, err := PCMBytesToWavBytes(pcm, channels, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("audio: wrap wav: %w", err)
	}
	return &core.AudioClip{Data: wav, MediaType: core.AudioMediaTypeWAV}, nil
}
