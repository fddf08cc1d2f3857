package trigger

// Pull-based audio chunk sources.
//
// The detector consumes fixed-size chunks of normalized mono samples from a
// ChunkSource collaborator; it never touches audio hardware itself. Two
// implementations ship with the pipeline: a WAV replay source for offline
// analysis and deterministic tests, and a raw PCM stream source that reads
// 16-bit little-endian samples from any io.Reader (a named pipe fed by a
// capture process, or a recording piped over stdin).

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"swing-trigger/wav"
)

// ChunkSource delivers consecutive fixed-size chunks of mono samples
// normalized to [-1, 1]. ReadChunk returns io.EOF when the stream ends and
// may block indefinitely on a live source. Sources are single-reader.
type ChunkSource interface {
	ReadChunk() ([]float64, error)
	Close() error
}

// SourceOpener opens the currently configured input. The detector calls it at
// Start so a device/source change takes effect on the next session.
type SourceOpener func() (ChunkSource, error)

// WAVSource replays a decoded WAV file chunk by chunk.
type WAVSource struct {
	samples   []float64
	rate      int
	chunkSize int
	pos       int
}

// NewWAVSource decodes path (mono PCM16) for replay in chunkSize blocks.
func NewWAVSource(path string, chunkSize int) (*WAVSource, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", chunkSize)
	}
	samples, rate, err := wav.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav source: %w", err)
	}
	return &WAVSource{samples: samples, rate: rate, chunkSize: chunkSize}, nil
}

// SampleRate reports the rate of the decoded file.
func (s *WAVSource) SampleRate() int { return s.rate }

func (s *WAVSource) ReadChunk() ([]float64, error) {
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	end := s.pos + s.chunkSize
	if end > len(s.samples) {
		end = len(s.samples)
	}
	chunk := make([]float64, end-s.pos)
	copy(chunk, s.samples[s.pos:end])
	s.pos = end
	return chunk, nil
}

func (s *WAVSource) Close() error {
	s.pos = len(s.samples)
	return nil
}

// StreamSource reads raw 16-bit little-endian mono PCM from an io.Reader.
type StreamSource struct {
	reader    *bufio.Reader
	closer    io.Closer
	chunkSize int
	buf       []byte
}

// NewStreamSource wraps r. If r is also an io.Closer it is closed by Close.
func NewStreamSource(r io.Reader, chunkSize int) *StreamSource {
	closer, _ := r.(io.Closer)
	return &StreamSource{
		reader:    bufio.NewReaderSize(r, chunkSize*4),
		closer:    closer,
		chunkSize: chunkSize,
		buf:       make([]byte, chunkSize*2),
	}
}

// NewPipeSource opens a file or named pipe of raw PCM16 samples.
func NewPipeSource(path string, chunkSize int) (*StreamSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcm source: %w", err)
	}
	return NewStreamSource(f, chunkSize), nil
}

func (s *StreamSource) ReadChunk() ([]float64, error) {
	n, err := io.ReadFull(s.reader, s.buf)
	if n == 0 {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	// a short final read still yields a (shorter) chunk
	return wav.PCM16ToSamples(s.buf[:n]), nil
}

func (s *StreamSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
