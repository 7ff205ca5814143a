package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// VectorBackend names a vector store implementation.
type VectorBackend string

const (
	// VectorBackendFlat scans every row; results are exact (default).
	VectorBackendFlat VectorBackend = "flat"

	// VectorBackendHNSW uses an approximate HNSW graph.
	VectorBackendHNSW VectorBackend = "hnsw"
)

// NewVectorStore creates an empty store for the given backend.
//
// backend options:
//   - "flat" (default): exact inner product over all rows
//   - "hnsw": coder/hnsw graph, approximate
func NewVectorStore(backend string, cfg VectorStoreConfig) (VectorStore, error) {
	switch backend {
	case string(VectorBackendFlat), "":
		return NewFlatStore(cfg)
	case string(VectorBackendHNSW):
		return NewHNSWStore(cfg)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: flat, hnsw)", backend)
	}
}

// OpenVectorStore creates a store and loads basePath into it. A missing,
// corrupt, or dimension-mismatched file is never fatal: it is logged and an
// empty store is returned, and the caller is expected to re-embed.
func OpenVectorStore(backend string, cfg VectorStoreConfig, basePath string) (VectorStore, error) {
	vs, err := NewVectorStore(backend, cfg)
	if err != nil {
		return nil, err
	}

	err = vs.Load(basePath)
	switch {
	case err == nil:
	case isMissing(err):
		if fileExists(basePath + ".map") {
			// Map without data file.
			slog.Warn("vector_store_corrupted",
				slog.String("path", basePath),
				slog.String("error", err.Error()))
		}
	default:
		var dimErr ErrDimensionMismatch
		event := "vector_store_corrupted"
		if errors.As(err, &dimErr) {
			event = "vector_store_dimension_changed"
		}
		slog.Warn(event,
			slog.String("path", basePath),
			slog.String("backend", backend),
			slog.String("error", err.Error()))
		vs.Reset()
	}
	return vs, nil
}

// DetectVectorBackend reports which backend wrote the files at basePath, or
// "" when none exist.
func DetectVectorBackend(basePath string) VectorBackend {
	switch {
	case fileExists(basePath + ".bin"):
		return VectorBackendFlat
	case fileExists(basePath + ".hnsw"):
		return VectorBackendHNSW
	default:
		return ""
	}
}

// RemoveVectorFiles deletes every file a backend may have written.
func RemoveVectorFiles(basePath string) error {
	for _, ext := range []string{".bin", ".hnsw", ".map"} {
		if err := os.Remove(basePath + ext); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", basePath+ext, err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
