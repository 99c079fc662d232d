package object

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Storage is the byte-addressable backing an Object reads source
// segments from (sender) or writes decoded segments into (receiver).
// It abstracts over in-memory data, on-disk files, and the
// open-ended stream backing in stream.go.
type Storage interface {
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
	Size() int64
	Close() error
}

// DataStorage backs a fixed in-memory NORM_OBJECT_DATA object.
type DataStorage struct {
	buf []byte
}

// NewDataStorage wraps an existing byte slice: the sender's source
// bytes, or a receiver-supplied slice already sized to the object.
func NewDataStorage(buf []byte) *DataStorage { return &DataStorage{buf: buf} }

func (d *DataStorage) ReadAt(buf []byte, offset int64) (int, error) {
	if offset >= int64(len(d.buf)) {
		return 0, io.EOF
	}
	n := copy(buf, d.buf[offset:])
	return n, nil
}

func (d *DataStorage) WriteAt(buf []byte, offset int64) (int, error) {
	end := offset + int64(len(buf))
	if end > int64(len(d.buf)) {
		return 0, errors.New("object: write past end of data storage")
	}
	return copy(d.buf[offset:end], buf), nil
}

func (d *DataStorage) Size() int64 { return int64(len(d.buf)) }
func (d *DataStorage) Close() error { return nil }
func (d *DataStorage) Bytes() []byte { return d.buf }

// FileStorage backs a NORM_OBJECT_FILE object with an *os.File.
type FileStorage struct {
	f    *os.File
	size int64
}

// OpenFileStorage opens path for a sender (read-only source file).
func OpenFileStorage(path string) (*FileStorage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "object: open file storage")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "object: stat file storage")
	}
	return &FileStorage{f: f, size: info.Size()}, nil
}

// CreateFileStorage creates path for a receiver, pre-sized to size.
func CreateFileStorage(path string, size int64) (*FileStorage, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "object: create file storage")
	}
	if size > 0 {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "object: truncate file storage")
		}
	}
	return &FileStorage{f: f, size: size}, nil
}

func (fs *FileStorage) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := fs.f.ReadAt(buf, offset)
	if err == io.EOF && n > 0 {
		return n, nil
	}
	return n, err
}

func (fs *FileStorage) WriteAt(buf []byte, offset int64) (int, error) {
	return fs.f.WriteAt(buf, offset)
}

func (fs *FileStorage) Size() int64  { return fs.size }
func (fs *FileStorage) Close() error { return fs.f.Close() }
