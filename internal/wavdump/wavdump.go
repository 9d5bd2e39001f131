// Package wavdump writes a receiver's I/Q stream to a 32-bit float stereo
// IEEE-float WAV file for offline inspection. It is an optional external
// consumer of the block-assembler callback stream, not part of the core
// engine's control path (spec §5/§9: debug WAV recording is an external
// collaborator of the core, wired in only when configured).
package wavdump

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cwsl/ubersdr-ingest/internal/iqsample"
)

const (
	bitsPerSample = 32
	numChannels   = 2
	formatIEEEFloat = 3
)

// Writer accumulates float32 I/Q samples into a WAV file, patching the
// RIFF/data chunk sizes on Close (spec §6: "standard 32-bit float stereo
// IEEE-float WAV with the obvious RIFF/fmt/data chunks").
type Writer struct {
	file           *os.File
	sampleRateHz   int
	samplesWritten uint32
}

// Create opens path and writes a placeholder header sized for sampleRateHz;
// the header is patched with final sizes on Close.
func Create(path string, sampleRateHz int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavdump: create %s: %w", path, err)
	}
	w := &Writer{file: f, sampleRateHz: sampleRateHz}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	byteRate := uint32(w.sampleRateHz * numChannels * (bitsPerSample / 8))
	blockAlign := uint16(numChannels * (bitsPerSample / 8))

	if _, err := w.file.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, uint32(0)); err != nil { // ChunkSize, patched later
		return err
	}
	if _, err := w.file.Write([]byte("WAVE")); err != nil {
		return err
	}
	if _, err := w.file.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	fields := []interface{}{
		uint16(formatIEEEFloat),
		uint16(numChannels),
		uint32(w.sampleRateHz),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
	}
	for _, f := range fields {
		if err := binary.Write(w.file, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.file.Write([]byte("data")); err != nil {
		return err
	}
	return binary.Write(w.file, binary.LittleEndian, uint32(0)) // Subchunk2Size, patched later
}

// WriteBlock appends one block's samples as interleaved little-endian
// float32 I/Q pairs.
func (w *Writer) WriteBlock(block *iqsample.Block) error {
	for _, s := range block.Samples {
		if err := binary.Write(w.file, binary.LittleEndian, s.I); err != nil {
			return fmt.Errorf("wavdump: write sample: %w", err)
		}
		if err := binary.Write(w.file, binary.LittleEndian, s.Q); err != nil {
			return fmt.Errorf("wavdump: write sample: %w", err)
		}
	}
	w.samplesWritten += uint32(len(block.Samples))
	return nil
}

// Close patches the RIFF and data chunk sizes and closes the file.
func (w *Writer) Close() error {
	dataSize := w.samplesWritten * numChannels * (bitsPerSample / 8)
	fileSize := dataSize + 36

	if _, err := w.file.Seek(4, 0); err != nil {
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, fileSize); err != nil {
		return err
	}
	if _, err := w.file.Seek(40, 0); err != nil {
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	return w.file.Close()
}
