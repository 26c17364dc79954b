package ocr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	// ErrCapabilityUnavailable reports a missing renderer or recognition
	// engine. It is the only error that should halt a batch.
	ErrCapabilityUnavailable = errors.New("ocr capability unavailable")
	// ErrRenderFailed reports that a document could not be rasterised.
	ErrRenderFailed = errors.New("page rendering failed")
	// ErrTimeout reports that a whole recognition call exceeded its budget.
	ErrTimeout = errors.New("recognition timed out")
)

const hashChunkSize = 8192

// HashFile returns the hex SHA-256 of the file contents, read in fixed-size
// chunks.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.CopyBuffer(hash, file, make([]byte, hashChunkSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

type fileStamp struct {
	path    string
	modTime int64
	size    int64
}

// Fingerprinter memoises file hashes. Entries are keyed by path, modification
// time and size, so a file rewritten on disk is hashed again.
type Fingerprinter struct {
	mu     sync.Mutex
	hashes map[fileStamp]string
	hashFn func(string) (string, error)
}

func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{hashes: make(map[fileStamp]string), hashFn: HashFile}
}

// Fingerprint returns the content hash for path.
func (f *Fingerprinter) Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	stamp := fileStamp{path: path, modTime: info.ModTime().UnixNano(), size: info.Size()}

	f.mu.Lock()
	digest, ok := f.hashes[stamp]
	f.mu.Unlock()
	if ok {
		return digest, nil
	}

	digest, err = f.hashFn(path)
	if err != nil {
		return "", fmt.Errorf("failed to calculate file hash: %w", err)
	}

	f.mu.Lock()
	f.hashes[stamp] = digest
	f.mu.Unlock()
	return digest, nil
}
