package stp

import "os"

// FileSink writes the received byte stream to disk in order, with no
// framing added, per spec.md §6's persistence guarantee.
type FileSink struct {
	f *os.File
}

// NewFileSink creates (truncating) path for writing.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &FatalSocketError{Err: err}
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Append(p []byte) error {
	_, err := s.f.Write(p)
	return err
}

func (s *FileSink) Close() error {
	return s.f.Close()
}
