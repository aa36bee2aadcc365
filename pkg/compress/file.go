// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compress

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ChecksumSuffix is appended to the artifact path for its checksum file.
const ChecksumSuffix = ".sha256"

// Output is a compressed artifact.
type Output struct {
	Path   string
	Size   int64
	SHA256 string
}

// FileOptions configure File.
type FileOptions struct {
	Progress func(read int64)
}

// FileOption sets a FileOptions field.
type FileOption func(*FileOptions)

// WithProgress reports the number of source bytes consumed so far.
func WithProgress(progress func(read int64)) FileOption {
	return func(o *FileOptions) {
		o.Progress = progress
	}
}

// File compresses src into dst with codec and writes a sha256sum compatible
// checksum of dst next to it.
func File(src, dst string, codec Codec, setters ...FileOption) (out Output, err error) {
	var opts FileOptions

	for _, setter := range setters {
		setter(&opts)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return out, err
	}

	defer srcFile.Close() //nolint:errcheck

	var in io.Reader = srcFile

	if opts.Progress != nil {
		in = &progressReader{r: srcFile, progress: opts.Progress}
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return out, err
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	hash := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(f, hash)}

	w, err := codec.NewWriter(counter)
	if err != nil {
		return out, err
	}

	if _, err = io.Copy(w, in); err != nil {
		w.Close() //nolint:errcheck

		return out, fmt.Errorf("error compressing %s: %w", src, err)
	}

	if err = w.Close(); err != nil {
		return out, fmt.Errorf("error finishing %s: %w", dst, err)
	}

	if err = f.Sync(); err != nil {
		return out, err
	}

	out = Output{
		Path:   dst,
		Size:   counter.n,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}

	if err = os.WriteFile(dst+ChecksumSuffix, []byte(out.SHA256+"  "+filepath.Base(dst)+"\n"), 0o644); err != nil {
		return out, err
	}

	return out, nil
}

// Verify decodes path with codec and checks that it expands to size bytes.
func Verify(path string, codec Codec, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	br := bufio.NewReader(f)

	if codec != None {
		header, peekErr := br.Peek(8)
		if peekErr != nil && !errors.Is(peekErr, io.EOF) {
			return peekErr
		}

		if detected := Detect(header); detected != codec {
			return fmt.Errorf("%s holds %s data, expected %s", path, detected, codec)
		}
	}

	r, err := codec.NewReader(br)
	if err != nil {
		return fmt.Errorf("error decoding %s: %w", path, err)
	}

	defer r.Close() //nolint:errcheck

	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return fmt.Errorf("error decoding %s: %w", path, err)
	}

	if n != size {
		return fmt.Errorf("%s expands to %d bytes, expected %d", path, n, size)
	}

	return nil
}

type progressReader struct {
	r        io.Reader
	progress func(int64)
	n        int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.n += int64(n)

	if n > 0 {
		p.progress(p.n)
	}

	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}
