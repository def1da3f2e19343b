package scrub

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Codecs for response bodies the scrubber can rewrite in place. A body
// arriving with any other content-encoding passes through unscanned.
const (
	codecIdentity = "identity"
	codecGzip     = "gzip"
	codecDeflate  = "deflate"
	codecBrotli   = "br"
	codecZstd     = "zstd"
)

// lookupCodec maps a content-encoding header value to a codec. Stacked
// encodings ("gzip, br") are not unwound.
func lookupCodec(header string) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(header))
	if strings.Contains(value, ",") {
		return "", false
	}
	switch {
	case value == "" || value == codecIdentity:
		return codecIdentity, true
	case strings.Contains(value, "gzip"):
		return codecGzip, true
	case strings.Contains(value, "deflate"):
		return codecDeflate, true
	case value == codecBrotli || strings.Contains(value, "brotli"):
		return codecBrotli, true
	case strings.Contains(value, "zstd"):
		return codecZstd, true
	}
	return "", false
}

func decodeBody(raw []byte, codec string) ([]byte, error) {
	switch codec {
	case codecGzip:
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)

	case codecDeflate:
		// RFC deflate is a zlib stream, but raw flate shows up in the
		// wild; try zlib first.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(fr)

	case codecBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))

	case codecZstd:
		dec, _, err := zstdCodecs()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(raw, nil)
	}

	return nil, fmt.Errorf("unsupported codec %q", codec)
}

func encodeBody(data []byte, codec string) ([]byte, error) {
	switch codec {
	case codecGzip:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			gw.Close()
			return nil, err
		}
		if err := gw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case codecDeflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case codecBrotli:
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		if _, err := bw.Write(data); err != nil {
			bw.Close()
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case codecZstd:
		_, enc, err := zstdCodecs()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(data, nil), nil
	}

	return nil, fmt.Errorf("unsupported codec %q", codec)
}

// zstd coders are expensive to construct, so one pair is built lazily and
// shared process-wide; DecodeAll and EncodeAll are concurrency-safe.
var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdEncoder *zstd.Encoder
	zstdInitErr error
)

func zstdCodecs() (*zstd.Decoder, *zstd.Encoder, error) {
	zstdOnce.Do(func() {
		zstdDecoder, zstdInitErr = zstd.NewReader(nil)
		if zstdInitErr != nil {
			return
		}
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil)
	})
	return zstdDecoder, zstdEncoder, zstdInitErr
}
