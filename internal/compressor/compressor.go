package compressor

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// Formats that are already compressed. App packages (.ipa, .apk) are zip
// archives and gain nothing from a second pass.
var skipExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".zip": true, ".rar": true, ".7z": true, ".gz": true, ".xz": true,
	".mp3": true, ".flac": true, ".aac": true,
	".apk": true, ".ipa": true, ".aab": true, ".iso": true,
}

func ShouldSkipCompression(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return skipExtensions[ext]
}

func Compress(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	return compressed.Bytes(), nil
}

func Decompress(data []byte) ([]byte, error) {
	var decompressed bytes.Buffer
	if _, err := io.Copy(&decompressed, NewReader(bytes.NewReader(data))); err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return decompressed.Bytes(), nil
}

// NewReader streams the decompressed form of an lz4 frame.
func NewReader(r io.Reader) io.Reader {
	return lz4.NewReader(r)
}
