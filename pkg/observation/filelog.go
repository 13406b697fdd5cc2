package observation

import (
	"bytes"
	"fmt"
	"os"
	"sync"
)

// Sink is anything observations can be appended to.
type Sink interface {
	Append(obs ...Observation) error
}

// FileLog is an append-only observation log on disk. Every Append is written with a
// single write on an O_APPEND descriptor while holding an exclusive advisory lock on
// the file, so concurrent processes sharing the log never interleave partial lines.
type FileLog struct {
	path string
	mu   sync.Mutex
}

func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

func (l *FileLog) Path() string {
	return l.path
}

// Append writes all of obs as one block.
func (l *FileLog) Append(obs ...Observation) error {
	if len(obs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, o := range obs {
		b, err := o.MarshalText()
		if err != nil {
			return err
		}
		buf.Write(b)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log %s: %w", l.path, err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("locking log %s: %w", l.path, err)
	}
	defer unlockFile(f)

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("appending to log %s: %w", l.path, err)
	}

	return nil
}

// ReadFile parses every observation in the log at path.
func ReadFile(path string) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

type multiSink []Sink

// MultiSink fans observations out to every sink, in order. It stops at the first error.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Append(obs ...Observation) error {
	for _, s := range m {
		if err := s.Append(obs...); err != nil {
			return err
		}
	}
	return nil
}
