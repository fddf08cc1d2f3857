package wav

// Minimal WAV container support for the trigger pipeline.
//
// Training snippets are persisted as mono 16-bit PCM WAV files so they can be
// auditioned and relabeled by the host application, and replayed through the
// detector for offline analysis. Only the canonical 44-byte RIFF header with a
// single PCM data chunk is produced; reading tolerates extra chunks before
// "data" and converts any bit depth of 16 back to normalized float samples.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const headerSize = 44

// WriteFile encodes normalized samples ([-1, 1]) as a mono PCM16 WAV file.
func WriteFile(path string, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	data := SamplesToPCM16(samples)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer f.Close()

	if err := writeHeader(f, len(data), sampleRate); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	return nil
}

// ReadFile decodes a mono PCM16 WAV file into normalized samples.
func ReadFile(path string) (samples []float64, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, errors.New("not a RIFF/WAVE file")
	}

	var (
		channels      int
		bitsPerSample int
		data          []byte
	)

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, 0, fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			fmtChunk := make([]byte, size)
			if _, err := io.ReadFull(f, fmtChunk); err != nil {
				return nil, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(fmtChunk) < 16 {
				return nil, 0, errors.New("fmt chunk too short")
			}
			audioFormat := int(binary.LittleEndian.Uint16(fmtChunk[0:2]))
			if audioFormat != 1 {
				return nil, 0, fmt.Errorf("unsupported audio format %d (PCM only)", audioFormat)
			}
			channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, 0, fmt.Errorf("failed to read data chunk: %w", err)
			}
		default:
			// skip unknown chunks (LIST, fact, ...)
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("failed to skip chunk %q: %w", id, err)
			}
		}
		if data != nil && sampleRate != 0 {
			break
		}
	}

	if sampleRate == 0 {
		return nil, 0, errors.New("missing fmt chunk")
	}
	if data == nil {
		return nil, 0, errors.New("missing data chunk")
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d (16-bit only)", bitsPerSample)
	}
	if channels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count %d (mono only)", channels)
	}

	return PCM16ToSamples(data), sampleRate, nil
}

// SamplesToPCM16 converts normalized samples to little-endian 16-bit PCM,
// clipping anything outside [-1, 1].
func SamplesToPCM16(samples []float64) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(s * 32767))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return data
}

// PCM16ToSamples converts little-endian 16-bit PCM to normalized samples.
// A trailing odd byte is ignored.
func PCM16ToSamples(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float64(v) / 32768.0
	}
	return samples
}

func writeHeader(w io.Writer, dataLen, sampleRate int) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var header [headerSize]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write wav header: %w", err)
	}
	return nil
}
