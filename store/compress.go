package store

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
)

// compressionMarker prefixes zlib-compressed columns so readers can tell a
// compressed blob from a legacy plain-JSON one written before compression
// was introduced.
const compressionMarker = "ZLIB:"

// compressJSON marshals v to compact JSON, zlib-compresses it, and
// base64-encodes the result behind the compression marker.
func compressJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, 6) // matches the original's deflate level 6
	if err != nil {
		return "", err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	return compressionMarker + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decompressJSON decodes data into out. It transparently handles the
// zlib+base64 encoding (ZLIB: prefix), legacy uncompressed JSON, and an
// empty string (left as the zero value of out).
func decompressJSON(data string, out any) error {
	if data == "" {
		return nil
	}

	if strings.HasPrefix(data, compressionMarker) {
		encoded := data[len(compressionMarker):]
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return err
		}

		r, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return err
		}
		defer r.Close()

		raw, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, out)
	}

	return json.Unmarshal([]byte(data), out)
}
