// Package storage keeps uploaded attachments on local disk under one
// directory per bucket and serves them at stable public URLs.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrBadPath  = errors.New("storage: invalid object path")
	ErrTooLarge = errors.New("storage: object too large")
	ErrExists   = errors.New("storage: object already exists")
)

// Disk stores objects at <Root>/<bucket>/<path>.
type Disk struct {
	Root    string
	BaseURL string
	// MaxBytes caps a single object; zero means no limit.
	MaxBytes int64
}

func NewDisk(root, baseURL string, maxBytes int64) *Disk {
	return &Disk{Root: root, BaseURL: strings.TrimRight(baseURL, "/"), MaxBytes: maxBytes}
}

// CleanPath normalizes an object path and rejects anything that would escape
// the bucket.
func CleanPath(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" || strings.Contains(p, "\\") {
		return "", ErrBadPath
	}
	clean := path.Clean(p)
	if clean != p || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", ErrBadPath
	}
	return clean, nil
}

func (d *Disk) file(bucket, objectPath string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\.`) {
		return "", ErrBadPath
	}
	clean, err := CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.Root, bucket, filepath.FromSlash(clean)), nil
}

// Put writes r to a new object. Objects are never overwritten.
func (d *Disk) Put(bucket, objectPath string, r io.Reader) (int64, error) {
	dst, err := d.file(bucket, objectPath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, ErrExists
		}
		return 0, fmt.Errorf("storage: create: %w", err)
	}

	src := r
	if d.MaxBytes > 0 {
		src = io.LimitReader(r, d.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && d.MaxBytes > 0 && n > d.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return 0, err
	}
	return n, nil
}

// Open returns the object for reading.
func (d *Disk) Open(bucket, objectPath string) (*os.File, error) {
	src, err := d.file(bucket, objectPath)
	if err != nil {
		return nil, err
	}
	return os.Open(src)
}

// URL is the public address of an object.
func (d *Disk) URL(bucket, objectPath string) string {
	return d.BaseURL + "/storage/" + bucket + "/" + strings.TrimPrefix(objectPath, "/")
}

// Attachments is the bucket holding consultation files. Objects live under
// the consultation id as the first path segment.
const Attachments = "consultation-files"
