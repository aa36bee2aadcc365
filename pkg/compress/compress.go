// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package compress implements the codecs used for the final image artifact.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/siderolabs/gen/xslices"
	"github.com/ulikunitz/xz"
)

// Codec is a compression format.
type Codec string

// Supported codecs.
const (
	None  Codec = "none"
	Gzip  Codec = "gzip"
	Zstd  Codec = "zstd"
	Xz    Codec = "xz"
	Lz4   Codec = "lz4"
	Bzip2 Codec = "bzip2"
)

// Codecs lists the supported codecs.
func Codecs() []Codec {
	return []Codec{None, Gzip, Zstd, Xz, Lz4, Bzip2}
}

// Names lists the canonical codec names.
func Names() []string {
	return xslices.Map(Codecs(), func(c Codec) string { return string(c) })
}

// Parse resolves a codec name or one of its common aliases.
func Parse(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "raw":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	case "xz":
		return Xz, nil
	case "lz4":
		return Lz4, nil
	case "bzip2", "bz2":
		return Bzip2, nil
	default:
		return "", fmt.Errorf("unsupported compression %q, expected one of %s", name, strings.Join(Names(), ", "))
	}
}

// String implements fmt.Stringer.
func (c Codec) String() string {
	return string(c)
}

// Extension returns the file name suffix of the codec.
func (c Codec) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case Xz:
		return ".xz"
	case Lz4:
		return ".lz4"
	case Bzip2:
		return ".bz2"
	case None:
		fallthrough
	default:
		return ""
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with the codec's encoder; Close flushes the encoder but not w.
func (c Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case Xz:
		return xz.NewWriter(w)
	case Lz4:
		return lz4.NewWriter(w), nil
	case Bzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{})
	default:
		return nil, fmt.Errorf("unsupported compression %q", string(c))
	}
}

// NewReader wraps r with the codec's decoder.
func (c Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}

		return d.IOReadCloser(), nil
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}

		return io.NopCloser(xr), nil
	case Lz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Bzip2:
		return bzip2.NewReader(r, &bzip2.ReaderConfig{})
	default:
		return nil, fmt.Errorf("unsupported compression %q", string(c))
	}
}

var magics = []struct {
	codec Codec
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{Lz4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{Xz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{Bzip2, []byte{'B', 'Z', 'h'}},
}

// Detect guesses the codec from the leading bytes of a stream.
func Detect(header []byte) Codec {
	for _, m := range magics {
		if bytes.HasPrefix(header, m.magic) {
			return m.codec
		}
	}

	return None
}
