package core

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // 16-bit little endian linear PCM.
	ULAW                            // μ-law encoding format.
	ALAW                            // A-law encoding format.
	WAV                             // RIFF/WAVE container.
	MP3                             // MPEG-1 Audio Layer III.
)

type AudioMediaType string

const (
	AudioMediaTypeWAV AudioMediaType = "audio/wav"
	AudioMediaTypeMP3 AudioMediaType = "audio/mpeg"
	AudioMediaTypeOGG AudioMediaType = "audio/ogg"
)

// AudioClip is a complete, playable piece of synthesized speech.
type AudioClip struct {
	Data      []byte         // Encoded audio, ready for playback.
	MediaType AudioMediaType // MIME type served to the player.
}

// Size returns the clip length in bytes.
func (c *AudioClip) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}
