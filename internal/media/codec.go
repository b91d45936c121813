package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/zaf/g711"
)

const (
	CodecPCMU = "audio/pcmu"
	CodecPCMA = "audio/pcma"
	CodecL16  = "audio/l16"

	DefaultCodec = CodecPCMU
)

var ErrUnknownCodec = errors.New("unknown codec")

// Codec turns PCM frames into one collector payload.
type Codec interface {
	Name() string
	Encode(frames []core.Frame) []byte
}

type sampleCodec struct {
	name  string
	width int
	put   func(dst []byte, s int16)
}

func (c sampleCodec) Name() string { return c.name }

func (c sampleCodec) Encode(frames []core.Frame) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, n*c.width)
	i := 0
	for _, f := range frames {
		for _, s := range f {
			c.put(out[i:], s)
			i += c.width
		}
	}
	return out
}

var codecs = map[string]Codec{
	CodecPCMU: sampleCodec{name: CodecPCMU, width: 1, put: func(dst []byte, s int16) { dst[0] = g711.EncodeUlawFrame(s) }},
	CodecPCMA: sampleCodec{name: CodecPCMA, width: 1, put: func(dst []byte, s int16) { dst[0] = g711.EncodeAlawFrame(s) }},
	// RFC 3551 L16 is network byte order.
	CodecL16: sampleCodec{name: CodecL16, width: 2, put: func(dst []byte, s int16) { binary.BigEndian.PutUint16(dst, uint16(s)) }},
}

func LookupCodec(name string) (Codec, error) {
	c, ok := codecs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// SelectCodec returns the named codec, or the default one when the name is not supported.
func SelectCodec(name string) Codec {
	if name == "" {
		return codecs[DefaultCodec]
	}
	c, err := LookupCodec(name)
	if err != nil {
		log.Warn().Err(err).Str("module", "media.codec").Str("fallback", DefaultCodec).Msg("codec not supported, falling back")
		return codecs[DefaultCodec]
	}
	return c
}

// EncodeUlaw packs a frame into a G.711 μ-law RTP payload.
func EncodeUlaw(f core.Frame) []byte {
	out := make([]byte, len(f))
	for i, s := range f {
		out[i] = g711.EncodeUlawFrame(s)
	}
	return out
}

func DecodeUlaw(payload []byte) core.Frame {
	out := make(core.Frame, len(payload))
	for i, b := range payload {
		out[i] = g711.DecodeUlawFrame(b)
	}
	return out
}

func DecodeAlaw(payload []byte) core.Frame {
	out := make(core.Frame, len(payload))
	for i, b := range payload {
		out[i] = g711.DecodeAlawFrame(b)
	}
	return out
}
