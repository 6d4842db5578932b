// Package chunker splits a compressed export artifact into fixed-size pieces
// and fingerprints each one, so uploads can be retried and verified piecewise.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ChunkSize is the fixed chunk payload size. Every chunk except possibly the
// last is exactly this long.
const ChunkSize = 1 << 20 // 1 MiB

// ErrArtifactNotFound is returned when the artifact to split does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// Chunk is one piece of the split artifact. Seq is 1-based and contiguous;
// SHA256 is the lowercase hex digest of the chunk's bytes.
type Chunk struct {
	Seq    int
	Path   string
	SHA256 string
}

// Splitter cuts artifacts into chunk files under a per-flight directory.
type Splitter struct {
	log zerolog.Logger
}

func NewSplitter(log zerolog.Logger) *Splitter {
	return &Splitter{log: log}
}

// Split cuts the artifact into ChunkSize pieces written as chunk_NNNN.bin
// under outputDir, returning them in sequence order. Deterministic and
// idempotent: re-running on the same artifact rewrites identical files.
// Concatenating the chunks in order reproduces the artifact byte for byte.
func (s *Splitter) Split(artifactPath, outputDir string) ([]Chunk, error) {
	in, err := os.Open(artifactPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", artifactPath, ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chunk dir: %w", err)
	}

	var chunks []Chunk
	buf := make([]byte, ChunkSize)
	for seq := 1; ; seq++ {
		n, err := io.ReadFull(in, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("reading artifact: %w", err)
		}

		path := filepath.Join(outputDir, fmt.Sprintf("chunk_%04d.bin", seq))
		if err := os.WriteFile(path, buf[:n], 0o644); err != nil {
			return nil, fmt.Errorf("writing chunk %d: %w", seq, err)
		}

		sum := sha256.Sum256(buf[:n])
		chunks = append(chunks, Chunk{
			Seq:    seq,
			Path:   path,
			SHA256: hex.EncodeToString(sum[:]),
		})

		if n < ChunkSize {
			break
		}
	}

	s.log.Info().Str("artifact", artifactPath).Int("chunks", len(chunks)).Msg("Split artifact")
	return chunks, nil
}
