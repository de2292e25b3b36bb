package utils

import (
	"io"
	"os"
	"strings"

	"github.com/google/brotli/go/cbrotli"
	"github.com/klauspost/compress/zstd"
	"github.com/shenwei356/xopen"
)

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() (err error) {
	for _, c := range m.closers {
		if e := c.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// OpenReader opens fn for reading and transparently decompresses it by
// suffix: .zst (zstd), .br (brotli), anything else through xopen which
// handles plain, gzip and stdin ("-").
func OpenReader(fn string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(fn, ".zst"):
		fp, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		zr, err := zstd.NewReader(fp, zstd.WithDecoderConcurrency(1))
		if err != nil {
			fp.Close()
			return nil, err
		}
		return &multiCloser{Reader: zr, closers: []io.Closer{zstdCloser{zr}, fp}}, nil
	case strings.HasSuffix(fn, ".br"):
		fp, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		brfp := cbrotli.NewReader(fp)
		return &multiCloser{Reader: brfp, closers: []io.Closer{brfp, fp}}, nil
	default:
		fp, err := xopen.Ropen(fn)
		if err != nil {
			return nil, err
		}
		return fp, nil
	}
}

type zstdCloser struct {
	d *zstd.Decoder
}

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

type writeCloser struct {
	io.Writer
	closers []io.Closer
}

func (w *writeCloser) Close() (err error) {
	for _, c := range w.closers {
		if e := c.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// CreateWriter creates fn, compressing with zstd when it ends in .zst.
func CreateWriter(fn string) (io.WriteCloser, error) {
	fp, err := os.Create(fn)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(fn, ".zst") {
		return fp, nil
	}
	zw, err := zstd.NewWriter(fp, zstd.WithEncoderCRC(false), zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(1))
	if err != nil {
		fp.Close()
		return nil, err
	}
	return &writeCloser{Writer: zw, closers: []io.Closer{zw, fp}}, nil
}
