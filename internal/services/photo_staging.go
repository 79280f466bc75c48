package services

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// PhotoStager writes submitted photo bytes to a transient local file for the
// duration of one submission.
type PhotoStager struct {
	dir string
}

func NewPhotoStager(dir string) *PhotoStager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &PhotoStager{dir: dir}
}

// StagedPhoto is a transient local copy of an uploaded photo. Release is
// idempotent and safe to defer.
type StagedPhoto struct {
	Path     string
	MimeType string
	Size     int64

	once       sync.Once
	releaseErr error
}

func (s *PhotoStager) Stage(data []byte, mimeType string) (*StagedPhoto, error) {
	f, err := os.CreateTemp(s.dir, "issue-photo-*")
	if err != nil {
		return nil, fmt.Errorf("stage photo: %w", err)
	}
	n, err := f.Write(data)
	if err == nil {
		err = f.Close()
	} else {
		f.Close()
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("stage photo: %w", err)
	}
	return &StagedPhoto{Path: f.Name(), MimeType: mimeType, Size: int64(n)}, nil
}

func (p *StagedPhoto) Open() (*os.File, error) {
	return os.Open(p.Path)
}

func (p *StagedPhoto) ReadAll() ([]byte, error) {
	f, err := p.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (p *StagedPhoto) Release() error {
	p.once.Do(func() {
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			p.releaseErr = err
		}
	})
	return p.releaseErr
}
