package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing constants.
const (
	// lengthPrefixSize is the size of the length prefix in bytes.
	lengthPrefixSize = 4

	// DefaultMaxMessageSize is the default maximum message size (64 KB).
	DefaultMaxMessageSize = 65536
)

// Framing errors.
var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// frameWriter writes length-prefixed frames to an underlying writer.
// Thread-safe.
type frameWriter struct {
	w              io.Writer
	maxMessageSize uint32
	mu             sync.Mutex
}

func newFrameWriter(w io.Writer, maxSize uint32) *frameWriter {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &frameWriter{w: w, maxMessageSize: maxSize}
}

func (fw *frameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > fw.maxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxMessageSize)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	var lengthBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))

	if _, err := fw.w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// frameReader reads length-prefixed frames from an underlying reader.
type frameReader struct {
	r              io.Reader
	maxMessageSize uint32
	lengthBuf      [lengthPrefixSize]byte
}

func newFrameReader(r io.Reader, maxSize uint32) *frameReader {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &frameReader{r: r, maxMessageSize: maxSize}
}

// ReadFrame returns the next frame payload, without the length prefix.
func (fr *frameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(fr.lengthBuf[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > fr.maxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, fr.maxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return payload, nil
}

// framer combines frame reading and writing on one stream.
type framer struct {
	*frameReader
	*frameWriter
}

func newFramer(rw io.ReadWriter, maxSize uint32) *framer {
	return &framer{
		frameReader: newFrameReader(rw, maxSize),
		frameWriter: newFrameWriter(rw, maxSize),
	}
}
