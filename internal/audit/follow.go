package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// Follower reads an audit log incrementally and reports whether another
// process has modified the secret store since the last call.
type Follower struct {
	mu     sync.Mutex
	path   string
	pid    int
	offset int64
}

// NewFollower starts following path from its current end. Entries written
// by pid (normally os.Getpid()) are ignored.
func NewFollower(path string, pid int) (*Follower, error) {
	f := &Follower{path: path, pid: pid}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		f.offset = info.Size()
	}
	return f, nil
}

// Changed consumes entries appended since the last call and returns true if
// any of them is a write or delete made by another process. A truncated or
// rotated log is read again from the start.
func (f *Follower) Changed() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.offset = 0
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() < f.offset {
		f.offset = 0
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return false, fmt.Errorf("seeking audit log: %w", err)
	}

	changed := false
	r := bufio.NewReader(file)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			// Leave a partial trailing line for the next call.
			break
		}
		f.offset += int64(len(line))

		var e Entry
		if json.Unmarshal(line, &e) != nil {
			continue
		}
		if e.PID == f.pid {
			continue
		}
		if e.Action == ActionSecretWrite || e.Action == ActionSecretDelete {
			changed = true
		}
	}
	return changed, nil
}
