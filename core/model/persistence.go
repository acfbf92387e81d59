package model

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// Codec selects the compression applied to persisted models.
type Codec byte

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

var codecNames = map[Codec]string{
	CodecNone: "none",
	CodecZstd: "zstd",
	CodecLZ4:  "lz4",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCodec parses "none", "zstd" or "lz4". The empty string means zstd.
func ParseCodec(name string) (Codec, error) {
	if name == "" {
		return CodecZstd, nil
	}
	for c, n := range codecNames {
		if n == name {
			return c, nil
		}
	}
	return CodecNone, errors.NewConfigurationError("codec", name, []string{"none", "zstd", "lz4"})
}

// File layout:
//
//	magic[4] | version[1] | codec[1] | xxhash64(payload)[8] | compressed gob payload
var fileMagic = [4]byte{'G', 'L', 'M', 'W'}

const fileVersion = 1

func init() {
	// ModelWeights carries interface-typed maps.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// Encode writes v to w as a checksummed, compressed gob stream.
func Encode(w io.Writer, v interface{}, codec Codec) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(v); err != nil {
		return errors.Wrap(err, "encode model")
	}

	header := make([]byte, 14)
	copy(header, fileMagic[:])
	header[4] = fileVersion
	header[5] = byte(codec)
	binary.LittleEndian.PutUint64(header[6:], xxhash.Sum64(payload.Bytes()))
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}

	cw, err := compressWriter(w, codec)
	if err != nil {
		return err
	}
	if _, err := cw.Write(payload.Bytes()); err != nil {
		return errors.Wrap(err, "write payload")
	}
	return errors.Wrap(cw.Close(), "flush payload")
}

// Decode reads a stream produced by Encode into v.
func Decode(r io.Reader, v interface{}) error {
	header := make([]byte, 14)
	if _, err := io.ReadFull(r, header); err != nil {
		return errors.Wrap(err, "read header")
	}
	if !bytes.Equal(header[:4], fileMagic[:]) {
		return errors.NewValueError("model.Decode", "not a glmgo model file")
	}
	if header[4] != fileVersion {
		return errors.NewValueError("model.Decode", "unsupported file version")
	}
	codec := Codec(header[5])
	want := binary.LittleEndian.Uint64(header[6:])

	cr, err := decompressReader(r, codec)
	if err != nil {
		return err
	}
	defer cr.Close()

	payload, err := io.ReadAll(cr)
	if err != nil {
		return errors.Wrap(err, "read payload")
	}
	if xxhash.Sum64(payload) != want {
		return errors.WithStack(errors.ErrChecksumMismatch)
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return errors.Wrap(err, "decode model")
	}
	return nil
}

// SaveModel はモデルをファイルに保存する
//
//	w, _ := glm.ExportWeights()
//	err := model.SaveModel(w, "place_cell.glmw", model.CodecZstd)
func SaveModel(v interface{}, filename string, codec Codec) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "create model file")
	}
	bw := bufio.NewWriter(file)
	if err := Encode(bw, v, codec); err != nil {
		file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return errors.Wrap(err, "flush model file")
	}
	return errors.Wrap(file.Close(), "close model file")
}

// LoadModel はファイルからモデルを読み込む
func LoadModel(v interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "open model file")
	}
	defer file.Close()
	return Decode(bufio.NewReader(file), v)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressWriter(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, errors.Wrap(err, "zstd writer")
		}
		return enc, nil
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, errors.NewConfigurationError("codec", codec.String(), []string{"none", "zstd", "lz4"})
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func decompressReader(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case CodecNone:
		return io.NopCloser(r), nil
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "zstd reader")
		}
		return zstdReadCloser{dec}, nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, errors.NewConfigurationError("codec", codec.String(), []string{"none", "zstd", "lz4"})
	}
}
