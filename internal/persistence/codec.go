package persistence

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec applies symmetric compression to stored blobs.
type Codec interface {
	// Name is the identifier written in the frame header.
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// frameMagic prefixes every framed blob: "idle/1 <codec>\n<payload>".
const frameMagic = "idle/1 "

// CodecByName resolves one of identity, gzip, zstd or snappy.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "identity", "none":
		return identityCodec{}, nil
	case "gzip":
		return gzipCodec{}, nil
	case "zstd":
		return zstdCodec{}, nil
	case "snappy":
		return snappyCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Frame compresses data with codec and prepends the self-describing header.
func Frame(codec Codec, data []byte) ([]byte, error) {
	if codec == nil {
		codec = identityCodec{}
	}
	payload, err := codec.Compress(data)
	if err != nil {
		return nil, err
	}
	header := frameMagic + codec.Name() + "\n"
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	return append(out, payload...), nil
}

// Unframe reverses Frame. Input without a header is returned unchanged, so
// plain JSON blobs written by hand stay readable.
func Unframe(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(frameMagic)) {
		return data, nil
	}
	rest := data[len(frameMagic):]
	newline := bytes.IndexByte(rest, '\n')
	if newline < 0 {
		return nil, fmt.Errorf("frame header not terminated")
	}
	codec, err := CodecByName(string(rest[:newline]))
	if err != nil {
		return nil, err
	}
	return codec.Decompress(rest[newline+1:])
}

// FrameCodec names the codec recorded in a framed blob's header, or "plain"
// for blobs written without one.
func FrameCodec(data []byte) string {
	if !bytes.HasPrefix(data, []byte(frameMagic)) {
		return "plain"
	}
	rest := data[len(frameMagic):]
	if newline := bytes.IndexByte(rest, '\n'); newline >= 0 {
		return string(rest[:newline])
	}
	return ""
}

type identityCodec struct{}

func (identityCodec) Name() string { return "identity" }

func (identityCodec) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (identityCodec) Decompress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("gzip decompress: empty payload")
	}
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer reader.Close()
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer decoder.Close()
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

type snappyCodec struct{}

func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCodec) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}
