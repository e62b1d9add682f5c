package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// RefineRatio compresses a sampled prefix with the chosen algorithm to
// produce a more accurate ratio estimate than the static per-extension
// table, per spec.md §4.7 ("for files under 10 MiB a 1 MiB prefix is
// sampled and actually compressed to refine the estimate").
func RefineRatio(path string, size int64, algo Algorithm) (float64, error) {
	sample, err := samplePrefix(path, size)
	if err != nil {
		return EstimateRatio(ext(path)), err
	}
	if len(sample) == 0 {
		return EstimateRatio(ext(path)), nil
	}

	compressed, err := compressBytes(sample, algo)
	if err != nil {
		return EstimateRatio(ext(path)), err
	}
	return float64(len(compressed)) / float64(len(sample)), nil
}

func compressBytes(data []byte, algo Algorithm) ([]byte, error) {
	var buf bytes.Buffer
	switch algo {
	case AlgorithmGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmXZ:
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case AlgorithmZstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %q", algo)
	}
	return buf.Bytes(), nil
}
