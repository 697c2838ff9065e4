package utils

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// gzipBase64Prefix is how every base64-encoded gzip stream starts.
const gzipBase64Prefix = "H4sI"

// CompressGzip gzips data and base64-encodes the result. Signalling payloads
// travel this way to keep SDP messages small.
func CompressGzip(data string) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write([]byte(data)); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func DecompressGzip(data string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("base64: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(decoded))
	if err != nil {
		return "", fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	result, err := io.ReadAll(gz)
	if err != nil {
		return "", fmt.Errorf("gzip read: %w", err)
	}

	return string(result), nil
}

// IsCompressed reports whether data looks like CompressGzip output.
func IsCompressed(data string) bool {
	return strings.HasPrefix(data, gzipBase64Prefix)
}

// MaybeDecompress returns data unchanged unless it is compressed.
func MaybeDecompress(data string) (string, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	return DecompressGzip(data)
}
