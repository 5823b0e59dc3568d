package ioutils

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// OpenMaybeCompressed opens path and transparently decompresses gzip input,
// detected by the .gz extension or the gzip magic bytes.
func OpenMaybeCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	if IsGzipPath(path) || hasGzipMagic(br) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return readCloser{Reader: zr, closeFn: func() error { _ = zr.Close(); return f.Close() }}, nil
	}
	return readCloser{Reader: br, closeFn: f.Close}, nil
}

// IsGzipPath reports whether path names a gzip file.
func IsGzipPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

func hasGzipMagic(br *bufio.Reader) bool {
	b, err := br.Peek(2)
	return err == nil && b[0] == 0x1f && b[1] == 0x8b
}

// WrapMaybeCompressed returns a buffered writer over w, gzip compressed when
// path ends in .gz. Closing the result flushes but does not close w.
func WrapMaybeCompressed(path string, w io.Writer) io.WriteCloser {
	if IsGzipPath(path) {
		zw := gzip.NewWriter(w)
		return writeCloser{Writer: zw, closeFn: zw.Close}
	}
	bw := bufio.NewWriter(w)
	return writeCloser{Writer: bw, closeFn: bw.Flush}
}

type readCloser struct {
	io.Reader
	closeFn func() error
}

func (r readCloser) Close() error { return r.closeFn() }

type writeCloser struct {
	io.Writer
	closeFn func() error
}

func (w writeCloser) Close() error { return w.closeFn() }
