package tracking

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/edsrzf/mmap-go"

	"github.com/dkeye/bounce/internal/domain"
)

// Layout of the shared position file: four native-endian int64 words, each
// accessed atomically. seq is odd while a write is in progress.
const (
	shmSeq = 8 * iota
	shmX
	shmY
	shmTS
	shmSize
)

// word addresses the 8-byte word at off. Mappings are page aligned, so every
// offset above is 8-byte aligned.
func word(data []byte, off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&data[off]))
}

var errTornRead = errors.New("shared position changed during read")

// SharedMemoryPublisher exports the tracked position through a memory-mapped
// file so a display process can follow it.
type SharedMemoryPublisher struct {
	mu   sync.Mutex
	file *os.File
	data mmap.MMap
	seq  uint64
}

func NewSharedMemoryPublisher(path string) (*SharedMemoryPublisher, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open shared position file: %w", err)
	}
	if err := file.Truncate(shmSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("size shared position file: %w", err)
	}
	data, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("map shared position file: %w", err)
	}
	return &SharedMemoryPublisher{file: file, data: data}, nil
}

func (s *SharedMemoryPublisher) Publish(p domain.TrackedPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return os.ErrClosed
	}
	s.seq++
	atomic.StoreUint64(word(s.data, shmSeq), s.seq)
	atomic.StoreUint64(word(s.data, shmX), uint64(int64(p.X)))
	atomic.StoreUint64(word(s.data, shmY), uint64(int64(p.Y)))
	atomic.StoreUint64(word(s.data, shmTS), uint64(p.Timestamp))
	s.seq++
	atomic.StoreUint64(word(s.data, shmSeq), s.seq)
	return nil
}

func (s *SharedMemoryPublisher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	err := s.data.Unmap()
	s.data = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadSharedPosition reads a consistent snapshot of the file written by
// SharedMemoryPublisher.
func ReadSharedPosition(path string) (domain.TrackedPosition, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.TrackedPosition{}, err
	}
	defer file.Close()
	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return domain.TrackedPosition{}, fmt.Errorf("map shared position file: %w", err)
	}
	defer data.Unmap()
	if len(data) < shmSize {
		return domain.TrackedPosition{}, fmt.Errorf("shared position file too short: %d bytes", len(data))
	}

	return readSeqlock(data)
}

func readSeqlock(data []byte) (domain.TrackedPosition, error) {
	for range 1000 {
		before := atomic.LoadUint64(word(data, shmSeq))
		if before%2 == 1 {
			continue
		}
		p := domain.TrackedPosition{
			Position: domain.Position{
				X: int(int64(atomic.LoadUint64(word(data, shmX)))),
				Y: int(int64(atomic.LoadUint64(word(data, shmY)))),
			},
			Timestamp: int64(atomic.LoadUint64(word(data, shmTS))),
		}
		if atomic.LoadUint64(word(data, shmSeq)) == before {
			return p, nil
		}
	}
	return domain.TrackedPosition{}, errTornRead
}
