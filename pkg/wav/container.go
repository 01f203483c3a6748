// Package wav parses RIFF/WAVE containers far enough to stream their PCM payload.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrFormat = errors.New("invalid wave container")

const (
	AudioFormatPCM = 1

	riffHeaderSize  = 12
	chunkHeaderSize = 8
	fmtChunkMinSize = 16
)

var (
	riffTag = [4]byte{'R', 'I', 'F', 'F'}
	waveTag = [4]byte{'W', 'A', 'V', 'E'}
	fmtTag  = [4]byte{'f', 'm', 't', ' '}
	dataTag = [4]byte{'d', 'a', 't', 'a'}
)

// Header is the decoded descriptive part of a WAVE file.
type Header struct {
	RIFFSize      uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	// DataSize is the payload length declared by the data chunk.
	DataSize uint32
	// Skipped lists the ids of chunks passed over before the payload.
	Skipped []string
}

func (h *Header) String() string {
	return fmt.Sprintf("format=%d channels=%d rate=%d bits=%d data=%d",
		h.AudioFormat, h.NumChannels, h.SampleRate, h.BitsPerSample, h.DataSize)
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Parse reads the container header from r and returns a reader positioned at the
// payload and bounded by its declared size. If r holds fewer bytes than declared, the
// payload reader reaches EOF early.
func Parse(r io.Reader) (*Header, io.Reader, error) {
	var riff struct {
		ID     [4]byte
		Size   uint32
		Format [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, nil, fmt.Errorf("%w: reading riff header: %v", ErrFormat, err)
	}
	if riff.ID != riffTag {
		return nil, nil, fmt.Errorf("%w: container tag %q", ErrFormat, riff.ID[:])
	}
	if riff.Format != waveTag {
		return nil, nil, fmt.Errorf("%w: format tag %q", ErrFormat, riff.Format[:])
	}

	h := &Header{RIFFSize: riff.Size}
	haveFmt := false

	for {
		var ch chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, nil, fmt.Errorf("%w: payload chunk not found", ErrFormat)
			}
			return nil, nil, fmt.Errorf("%w: reading chunk header: %v", ErrFormat, err)
		}

		switch ch.ID {
		case fmtTag:
			if err := readFmt(r, ch.Size, h); err != nil {
				return nil, nil, err
			}
			haveFmt = true

		case dataTag:
			if !haveFmt {
				return nil, nil, fmt.Errorf("%w: payload chunk before fmt chunk", ErrFormat)
			}
			h.DataSize = ch.Size
			return h, io.LimitReader(r, int64(ch.Size)), nil

		default:
			if err := skip(r, int64(ch.Size)); err != nil {
				return nil, nil, fmt.Errorf("%w: skipping %q chunk: %v", ErrFormat, ch.ID[:], err)
			}
			h.Skipped = append(h.Skipped, string(ch.ID[:]))
		}
	}
}

func readFmt(r io.Reader, size uint32, h *Header) error {
	if size < fmtChunkMinSize {
		return fmt.Errorf("%w: fmt chunk is %d bytes", ErrFormat, size)
	}
	var f fmtChunk
	if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
		return fmt.Errorf("%w: reading fmt chunk: %v", ErrFormat, err)
	}
	if err := skip(r, int64(size-fmtChunkMinSize)); err != nil {
		return fmt.Errorf("%w: skipping fmt extension: %v", ErrFormat, err)
	}

	h.AudioFormat = f.AudioFormat
	h.NumChannels = f.NumChannels
	h.SampleRate = f.SampleRate
	h.ByteRate = f.ByteRate
	h.BlockAlign = f.BlockAlign
	h.BitsPerSample = f.BitsPerSample
	return nil
}

// skip discards exactly n bytes, seeking when the reader allows it.
func skip(r io.Reader, n int64) error {
	if n == 0 {
		return nil
	}
	if s, ok := r.(io.Seeker); ok {
		cur, err := s.Seek(0, io.SeekCurrent)
		if err == nil {
			end, err := s.Seek(0, io.SeekEnd)
			if err != nil {
				return err
			}
			if end-cur < n {
				return io.ErrUnexpectedEOF
			}
			_, err = s.Seek(cur+n, io.SeekStart)
			return err
		}
	}
	copied, err := io.CopyN(io.Discard, r, n)
	if err == io.EOF && copied < n {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Encode writes a canonical 44 byte header for a PCM payload of dataSize bytes.
func Encode(w io.Writer, channels, sampleRate, bitsPerSample int, dataSize uint32) error {
	blockAlign := channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Write(riffTag[:])
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36)+dataSize)
	buf.Write(waveTag[:])
	buf.Write(fmtTag[:])
	_ = binary.Write(&buf, binary.LittleEndian, uint32(fmtChunkMinSize))
	_ = binary.Write(&buf, binary.LittleEndian, fmtChunk{
		AudioFormat:   AudioFormatPCM,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(bitsPerSample),
	})
	buf.Write(dataTag[:])
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	_, err := buf.WriteTo(w)
	return err
}
