package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Container selects how assembled recordings are written to disk.
type Container string

const (
	ContainerWAV Container = "wav"
	ContainerRaw Container = "raw"
)

// MIME returns the content type recorded on assets in this container.
func (c Container) MIME() string {
	if c == ContainerRaw {
		return "audio/L16"
	}
	return "audio/wav"
}

var (
	ErrAssetNotFound = errors.New("recording not found")
	ErrInvalidID     = errors.New("invalid recording id")

	validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// Asset is an assembled recording as held by the store.
type Asset struct {
	ID   string
	MIME string
	Data []byte
}

// Store keeps one assembled recording per session ID under dir.
// Saving an existing ID replaces it.
type Store struct {
	dir        string
	container  Container
	sampleRate int
}

func NewStore(dir string, container Container, sampleRate int) (*Store, error) {
	if container == "" {
		container = ContainerWAV
	}
	if container != ContainerWAV && container != ContainerRaw {
		return nil, fmt.Errorf("unknown container %q", container)
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &Store{dir: dir, container: container, sampleRate: sampleRate}, nil
}

// Container reports the on-disk container of this store.
func (s *Store) Container() Container { return s.container }

// Path returns where the recording for id lives.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+"."+string(s.container))
}

// Save writes the assembled pcm buffer for id. The file is written to a
// temporary name, synced and renamed, so readers never observe a partial asset.
func (s *Store) Save(id string, pcm []byte) (Asset, error) {
	if !validID.MatchString(id) {
		return Asset{}, ErrInvalidID
	}
	err := writeAtomic(s.Path(id), func(f *os.File) error {
		if s.container == ContainerRaw {
			_, err := f.Write(pcm)
			return err
		}
		return encodeWAV(f, pcm, s.sampleRate)
	})
	if err != nil {
		return Asset{}, fmt.Errorf("save recording %s: %w", id, err)
	}
	return Asset{ID: id, MIME: s.container.MIME(), Data: pcm}, nil
}

// Open returns the stored file bytes for id, container header included.
func (s *Store) Open(id string) (Asset, error) {
	if !validID.MatchString(id) {
		return Asset{}, ErrInvalidID
	}
	b, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, fmt.Errorf("read recording %s: %w", id, err)
	}
	return Asset{ID: id, MIME: s.container.MIME(), Data: b}, nil
}

// Load returns the assembled sample buffer for id, container header stripped.
func (s *Store) Load(id string) (Asset, error) {
	a, err := s.Open(id)
	if err != nil {
		return Asset{}, err
	}
	if s.container == ContainerRaw {
		return a, nil
	}
	pcm, _, err := DecodeWAVToPCM16(a.Data)
	if err != nil {
		return Asset{}, fmt.Errorf("decode recording %s: %w", id, err)
	}
	a.Data = pcm
	return a, nil
}

func writeAtomic(path string, write func(f *os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
