package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type entry[V any] struct {
	Value     V         `msgpack:"v"`
	WrittenAt time.Time `msgpack:"t"`
}

func encode[V any](entries map[string]entry[V]) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)

	if err := msgpack.NewEncoder(zw).Encode(entries); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to encode entries: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress entries: %w", err)
	}
	return buf.Bytes(), nil
}

func decode[V any](data []byte) (map[string]entry[V], error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress entries: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress entries: %w", err)
	}

	entries := make(map[string]entry[V])
	if err := msgpack.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	return entries, nil
}
