package export

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
)

const (
	// wavPCMFormat is the WAVE_FORMAT_PCM audio format tag
	wavPCMFormat = 1

	// wavHeaderSize is the RIFF, fmt and data chunk headers written before the PCM
	wavHeaderSize = 44
)

// WAVFile is the storage a WAVWriter streams into. *os.File satisfies it.
type WAVFile interface {
	io.WriteSeeker
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// WAVWriter streams 16-bit PCM into a WAV file. The file stays open between writes and
// the RIFF header is patched on Close.
type WAVWriter struct {
	path    string
	file    WAVFile
	enc     *wav.Encoder
	format  audiocore.AudioFormat
	buf     *audio.IntBuffer
	written int64 // bytes of PCM
	torn    bool  // a write failed part way
	closed  bool
}

// CreateWAV creates path and prepares it for streaming writes
func CreateWAV(path string, format audiocore.AudioFormat) (*WAVWriter, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // path built from the output directory
	if err != nil {
		return nil, errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "create_wav").
			FileContext(path, 0).
			Build()
	}
	return NewWAVWriter(path, file, format)
}

// NewWAVWriter streams into an already opened, empty file. path is only used for
// reporting and Abort.
func NewWAVWriter(path string, file WAVFile, format audiocore.AudioFormat) (*WAVWriter, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &WAVWriter{
		path:   path,
		file:   file,
		enc:    wav.NewEncoder(file, format.SampleRate, format.BitDepth, format.Channels, wavPCMFormat),
		format: format,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
			SourceBitDepth: format.BitDepth,
		},
	}, nil
}

// Write appends PCM bytes to the file
func (w *WAVWriter) Write(pcm []byte) error {
	if w.closed || w.torn {
		return errors.Newf("write to closed WAV writer").
			Component("export").
			Category(errors.CategoryState).
			Context("torn", w.torn).
			Build()
	}

	w.buf.Data = bytesToSamples(pcm, w.buf.Data)
	if err := w.enc.Write(w.buf); err != nil {
		w.torn = true
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "write_wav").
			FileContext(w.path, w.written).
			Build()
	}
	w.written += int64(len(pcm) / 2 * 2)
	return nil
}

// Close finalizes the header, syncs the file to disk and closes it. After a failed Write
// the file is cut back to the PCM written before the failure, so it stays playable.
// Calling Close more than once is a no-op.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var encErr error
	if w.torn {
		encErr = w.salvage()
	} else {
		encErr = w.enc.Close()
	}
	var syncErr error
	if encErr == nil {
		syncErr = w.file.Sync()
	}
	closeErr := w.file.Close()

	if err := errors.Join(encErr, syncErr, closeErr); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "finalize_wav").
			FileContext(w.path, w.written).
			Build()
	}
	return nil
}

// salvage drops whatever a failed write left after the last complete block and
// rewrites the header for the PCM that remains. It needs no extra space on disk.
func (w *WAVWriter) salvage() error {
	if err := w.file.Truncate(wavHeaderSize + w.written); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := w.file.Write(w.header())
	return err
}

// header builds a canonical PCM header for the bytes written so far.
//
//nolint:gosec // format is validated on creation and WAV sizes are 32-bit
func (w *WAVWriter) header() []byte {
	blockAlign := w.format.BlockAlign()
	h := make([]byte, wavHeaderSize)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], uint32(wavHeaderSize-8+w.written))
	copy(h[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], wavPCMFormat)
	binary.LittleEndian.PutUint16(h[22:], uint16(w.format.Channels))
	binary.LittleEndian.PutUint32(h[24:], uint32(w.format.SampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(w.format.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:], uint16(w.format.BitDepth))
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], uint32(w.written))
	return h
}

// Abort closes and removes a partially written file
func (w *WAVWriter) Abort() {
	if !w.closed {
		w.closed = true
		_ = w.file.Close()
	}
	_ = os.Remove(w.path)
}

// Path returns the file being written
func (w *WAVWriter) Path() string { return w.path }

// Bytes returns the number of PCM bytes written so far
func (w *WAVWriter) Bytes() int64 { return w.written }

// WriteWAV writes frames to a new WAV file at path in one pass
func WriteWAV(path string, format audiocore.AudioFormat, frames []audiocore.Frame) error {
	w, err := CreateWAV(path, format)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := w.Write(frame); err != nil {
			w.Abort()
			return err
		}
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// ReadWAV decodes a 16-bit PCM WAV file into raw little-endian PCM
func ReadWAV(path string) ([]byte, audiocore.AudioFormat, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, audiocore.AudioFormat{}, errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "open_wav").
			Build()
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, audiocore.AudioFormat{}, errors.Newf("input is not a valid WAV audio file").
			Component("export").
			Category(errors.CategoryValidation).
			FileContext(path, 0).
			Build()
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, audiocore.AudioFormat{}, errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "decode_wav").
			Build()
	}

	format := audiocore.NewPCM16Format(int(decoder.SampleRate), int(decoder.NumChans))
	format.BitDepth = int(decoder.BitDepth)
	return samplesToBytes(buf.Data), format, nil
}

// bytesToSamples converts little-endian 16-bit PCM to ints, reusing dst
func bytesToSamples(pcm []byte, dst []int) []int {
	n := len(pcm) / 2
	if cap(dst) < n {
		dst = make([]int, n)
	}
	dst = dst[:n]
	for i := range n {
		dst[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return dst
}

func samplesToBytes(samples []int) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return pcm
}
