package artifactstore

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"vidgo/internal/services"
)

// Class partitions artifacts by role. Each class maps to one subdirectory
// under the store root.
type Class string

const (
	ClassVideo     Class = "video"
	ClassAudio     Class = "audio"
	ClassThumbnail Class = "thumbnail"
	ClassSubtitle  Class = "subtitle"
	ClassWaveform  Class = "waveform"
	ClassExport    Class = "export"
	ClassHLS       Class = "hls"
)

var classDirs = map[Class]string{
	ClassVideo:     "saved_video",
	ClassAudio:     "saved_audio",
	ClassThumbnail: "thumbnail",
	ClassSubtitle:  "saved_srt",
	ClassWaveform:  "waveform_data",
	ClassExport:    "export_videos",
	ClassHLS:       "stream_video",
}

// Store is a content-addressed artifact store rooted at a single directory.
// Published files are immutable; every write streams to a temp path and is
// renamed into place, so concurrent writers of identical bytes converge on
// one file.
type Store struct {
	root string
}

// New constructs a store rooted at dir, creating the class directories.
func New(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrValidation, "artifactstore", "new", "root directory required", nil)
	}
	for _, sub := range classDirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, services.Wrap(services.ErrValidation, "artifactstore", "new", "create class directory", err)
		}
	}
	return &Store{root: dir}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// PutResult describes the outcome of a PutStream call.
type PutResult struct {
	Key  string
	Size int64
	Path string
	// Existed reports whether identical bytes were already published.
	Existed bool
}

// PutStream streams r into the store under class, computing the MD5 content
// key while writing. ext must include the leading dot. If the final path
// already exists the temp file is discarded and the existing artifact wins.
func (s *Store) PutStream(class Class, ext string, r io.Reader) (PutResult, error) {
	var res PutResult
	dir, err := s.classDir(class)
	if err != nil {
		return res, err
	}
	ext = normalizeExt(ext)

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return res, services.Wrap(services.ErrTransient, "artifactstore", "put", "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := md5.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return res, services.Wrap(services.ErrTransient, "artifactstore", "put", "stream content", err)
	}

	key := hex.EncodeToString(hasher.Sum(nil))
	final := filepath.Join(dir, key+ext)
	res = PutResult{Key: key, Size: size, Path: final}

	if _, statErr := os.Stat(final); statErr == nil {
		res.Existed = true
		return res, nil
	}
	if err := os.Rename(tmpPath, final); err != nil {
		// A concurrent writer may have published the same key first.
		if _, statErr := os.Stat(final); statErr == nil {
			res.Existed = true
			return res, nil
		}
		return res, services.Wrap(services.ErrTransient, "artifactstore", "put", "publish artifact", err)
	}
	return res, nil
}

// PutFile publishes an existing file, keyed by its MD5 digest. The source is
// left in place.
func (s *Store) PutFile(class Class, path string) (PutResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return PutResult{}, services.Wrap(services.ErrNotFound, "artifactstore", "put file", "open source", err)
	}
	defer file.Close()
	return s.PutStream(class, filepath.Ext(path), file)
}

// WriteDerived atomically writes a derived artifact (subtitle, waveform doc)
// under a caller-chosen name. Unlike PutStream the name is not content keyed.
func (s *Store) WriteDerived(class Class, name string, data []byte) (string, error) {
	dir, err := s.classDir(class)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, name)
	if err := renameio.WriteFile(target, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "artifactstore", "write derived", "atomic write", err)
	}
	return target, nil
}

// Open returns a reader for the artifact named by (class, name).
func (s *Store) Open(class Class, name string) (io.ReadCloser, error) {
	path, err := s.Path(class, name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "artifactstore", "open", name, err)
		}
		return nil, services.Wrap(services.ErrTransient, "artifactstore", "open", name, err)
	}
	return file, nil
}

// Path resolves the absolute path for an artifact without touching the disk.
func (s *Store) Path(class Class, name string) (string, error) {
	dir, err := s.classDir(class)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// Exists reports whether the artifact is published.
func (s *Store) Exists(class Class, name string) bool {
	path, err := s.Path(class, name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Delete removes a single artifact. Deleting a missing artifact is not an error.
func (s *Store) Delete(class Class, name string) error {
	path, err := s.Path(class, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "artifactstore", "delete", name, err)
	}
	return nil
}

// DeleteAll removes every artifact in every class whose name starts with the
// content key, plus the HLS directory for that key.
func (s *Store) DeleteAll(contentKey string) error {
	contentKey = strings.TrimSpace(contentKey)
	if contentKey == "" {
		return services.Wrap(services.ErrValidation, "artifactstore", "delete all", "content key required", nil)
	}
	var firstErr error
	for class := range classDirs {
		dir, err := s.classDir(class)
		if err != nil {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), contentKey) {
				continue
			}
			target := filepath.Join(dir, entry.Name())
			var rmErr error
			if entry.IsDir() {
				rmErr = os.RemoveAll(target)
			} else {
				rmErr = os.Remove(target)
			}
			if rmErr != nil && firstErr == nil {
				firstErr = rmErr
			}
		}
	}
	if firstErr != nil {
		return services.Wrap(services.ErrTransient, "artifactstore", "delete all", contentKey, firstErr)
	}
	return nil
}

// DeriveKey builds a derived artifact name from a content key, suffixes, and
// an extension. Suffixes join with underscores: DeriveKey("abc", "en", ".srt")
// yields "abc_en.srt".
func DeriveKey(contentKey string, suffix string, ext string) string {
	key := strings.ToLower(strings.TrimSpace(contentKey))
	if suffix = strings.TrimSpace(suffix); suffix != "" {
		key += "_" + suffix
	}
	return key + normalizeExt(ext)
}

// HLSDir returns (creating if needed) the segment directory for a content key.
func (s *Store) HLSDir(contentKey string) (string, error) {
	dir, err := s.classDir(ClassHLS)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, strings.ToLower(strings.TrimSpace(contentKey)))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "artifactstore", "hls dir", contentKey, err)
	}
	return target, nil
}

// Dir returns the directory backing a class, for callers that hand a whole
// output directory to an external tool.
func (s *Store) Dir(class Class) (string, error) {
	return s.classDir(class)
}

func (s *Store) classDir(class Class) (string, error) {
	sub, ok := classDirs[class]
	if !ok {
		return "", services.Wrap(services.ErrValidation, "artifactstore", "resolve class", fmt.Sprintf("unknown class %q", class), nil)
	}
	return filepath.Join(s.root, sub), nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
