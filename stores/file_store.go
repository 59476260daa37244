package stores

import (
	"bufio"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	cst "pinfeed.io/pinfeed/constants"
	pe "pinfeed.io/pinfeed/errors"
)

// FileStore stores pin image bytes. A pin's Image field holds the public
// reference (/uploads/<name>); the store maps references to bytes on disk.
type FileStore interface {
	// Ref derives the public reference for a stored image file name
	Ref(filename string) string
	Save(ref string, r io.ReadCloser) *pe.PinErr
	Get(ref string) (io.ReadCloser, *pe.PinErr)
	// Delete deletes image bytes. Delete must be idempotent
	Delete(ref string) *pe.PinErr
	// List returns the references of all stored images, for the janitor
	List() ([]string, *pe.PinErr)
	Close() *pe.PinErr
}

// LocalFileStore implements FileStore backed by the local file system under
// a configured upload directory.
type LocalFileStore struct {
	Dir string
}

func NewLocalFileStore(dir string) (*LocalFileStore, *pe.PinErr) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pe.ErrServiceFailure("error creating upload directory").WithCause(err)
	}
	return &LocalFileStore{Dir: dir}, nil
}

func (fs *LocalFileStore) Ref(filename string) string {
	return cst.UploadURLPrefix + filename
}

// path maps a public reference back to the on-disk location, rejecting
// anything that escapes the upload directory.
func (fs *LocalFileStore) path(ref string) (string, *pe.PinErr) {
	name := strings.TrimPrefix(ref, cst.UploadURLPrefix)
	if name == "" || name != filepath.Base(name) {
		return "", pe.ErrBadInput("invalid image reference")
	}
	return filepath.Join(fs.Dir, name), nil
}

func (fs *LocalFileStore) Save(ref string, r io.ReadCloser) *pe.PinErr {
	imageSizeMax := viper.GetInt64(cst.EnvImageSizeMax)
	if imageSizeMax <= 0 {
		imageSizeMax = 10 << 20
	}
	p, perr := fs.path(ref)
	if perr != nil {
		return perr
	}
	f, err := os.Create(p)
	if err != nil {
		return pe.ErrServiceFailure("error allocating image storage space").WithCause(err)
	}
	defer f.Close()
	br := bufio.NewReader(http.MaxBytesReader(nil, r, imageSizeMax))
	if _, err := br.WriteTo(f); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			return pe.ErrBadInput("image oversized").WithCause(err)
		}
		return pe.ErrServiceFailure("error saving image data").WithCause(err)
	}
	return nil
}

func (fs *LocalFileStore) Get(ref string) (io.ReadCloser, *pe.PinErr) {
	p, perr := fs.path(ref)
	if perr != nil {
		return nil, perr
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pe.ErrNotFound("image not found").WithCause(err)
		}
		return nil, pe.ErrServiceFailure("error retrieving image").WithCause(err)
	}
	return f, nil
}

func (fs *LocalFileStore) Delete(ref string) *pe.PinErr {
	p, perr := fs.path(ref)
	if perr != nil {
		return perr
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return pe.ErrServiceFailure("error removing image").WithCause(err)
	}
	return nil
}

func (fs *LocalFileStore) List() ([]string, *pe.PinErr) {
	entries, err := os.ReadDir(fs.Dir)
	if err != nil {
		return nil, pe.ErrServiceFailure("error listing upload directory").WithCause(err)
	}
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		refs = append(refs, fs.Ref(e.Name()))
	}
	return refs, nil
}

func (fs *LocalFileStore) Close() *pe.PinErr {
	return nil
}
