// Package still persists captured JPEG artifacts with crash-safe
// two-phase writes and EXIF orientation tagging.
//
// Phase one makes the artifact durable: the encoded bytes are written to
// a pending file, synced, and renamed into place, so the final path never
// holds a partial JPEG. Phase two rewrites the artifact with an EXIF
// orientation tag. A phase-two failure leaves the untagged artifact in
// place and is reported as non-fatal.
package still

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// ErrPersistFailed is returned when an artifact could not be made
// durable. The cause is wrapped.
var ErrPersistFailed = errors.New("still persist failed")

const pendingSuffix = ".pending"

// Request names the artifact a save should produce.
type Request struct {
	// FileName is the artifact name inside the output directory,
	// e.g. "door-20260821-104501.jpg". Path separators are rejected.
	FileName string

	// Orientation is the upright-display rotation in degrees
	// (0, 90, 180, 270). It is recorded as an EXIF orientation tag,
	// not applied to the pixels.
	Orientation int

	// Quality is the JPEG quality the bytes were encoded with.
	// Recorded for logging only.
	Quality int
}

// Result reports a persisted artifact.
type Result struct {
	// Path is the final artifact location.
	Path string

	// Bytes is the artifact size on disk.
	Bytes int64

	// Duration covers both phases.
	Duration time.Duration

	// TagError is set when phase two failed and the artifact was left
	// untagged. The artifact itself is valid.
	TagError error
}

// Writer persists stills into a single output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter prepares the output directory and probes that it is
// writable, so persistence failures surface at startup rather than on
// the first capture.
func NewWriter(dir string, logger *slog.Logger) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("still: output directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("still: failed to create output directory: %w", err)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("still: output directory not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return &Writer{dir: dir, logger: logger}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Save persists one encoded JPEG.
//
// This method:
//  1. Rejects duplicate file names before writing anything.
//  2. Writes the bytes to a pending file, syncs it, and renames it into
//     place (phase one). Any failure here removes the pending file and
//     returns ErrPersistFailed.
//  3. Rewrites the artifact with an EXIF orientation tag through a
//     second pending file (phase two). Failure here is recorded in
//     Result.TagError and does not fail the save.
func (w *Writer) Save(ctx context.Context, data []byte, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("still: save cancelled: %w", err)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("still: %w: empty artifact", ErrPersistFailed)
	}
	if req.FileName == "" || filepath.Base(req.FileName) != req.FileName {
		return Result{}, fmt.Errorf("still: invalid file name %q", req.FileName)
	}

	start := time.Now()
	final := filepath.Join(w.dir, req.FileName)
	pending := final + pendingSuffix

	if _, err := os.Stat(final); err == nil {
		return Result{}, fmt.Errorf("still: failed to persist %q: %w: %w", req.FileName, ErrPersistFailed, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Result{}, fmt.Errorf("still: failed to persist %q: %w: %w", req.FileName, ErrPersistFailed, err)
	}

	if err := w.persist(pending, final, data); err != nil {
		os.Remove(pending)
		return Result{}, fmt.Errorf("still: failed to persist %q: %w: %w", req.FileName, ErrPersistFailed, err)
	}

	res := Result{Path: final}

	tagged, err := tagOrientation(data, orientationCode(req.Orientation))
	if err == nil {
		err = w.persist(pending, final, tagged)
	}
	if err != nil {
		os.Remove(pending)
		res.TagError = err
		w.logger.Warn("still: orientation tagging failed, artifact left untagged",
			"path", final,
			"orientation", req.Orientation,
			"error", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return Result{}, fmt.Errorf("still: failed to persist %q: %w: %w", req.FileName, ErrPersistFailed, err)
	}
	res.Bytes = info.Size()
	res.Duration = time.Since(start)

	w.logger.Info("still: saved",
		"path", final,
		"bytes", res.Bytes,
		"quality", req.Quality,
		"orientation", req.Orientation,
		"tagged", res.TagError == nil,
		"duration_ms", res.Duration.Milliseconds())

	return res, nil
}

// persist writes data to the pending path, syncs it, and renames it over
// the final path. The final path always holds either the previous
// complete artifact or the new one, never a partial write.
func (w *Writer) persist(pending, final string, data []byte) error {
	f, err := os.OpenFile(pending, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open pending file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write pending file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync pending file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close pending file: %w", err)
	}

	if err := os.Rename(pending, final); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	if err := syncDir(w.dir); err != nil {
		w.logger.Warn("still: directory sync after rename failed", "dir", w.dir, "error", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	err = d.Sync()
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}

// orientationCode maps a rotation in degrees to the EXIF orientation
// value for an image that must be rotated clockwise by that amount to
// display upright.
func orientationCode(degrees int) uint16 {
	switch degrees {
	case 90:
		return 6
	case 180:
		return 3
	case 270:
		return 8
	default:
		return 1
	}
}

// tagOrientation returns a copy of the JPEG with an EXIF orientation
// tag set on IFD0. The pixel data is carried over untouched.
func tagOrientation(data []byte, code uint16) ([]byte, error) {
	jmp := jpegstructure.NewJpegMediaParser()
	intfc, err := jmp.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jpeg: %w", err)
	}
	sl, ok := intfc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("unexpected media context %T", intfc)
	}

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		return nil, fmt.Errorf("failed to build exif: %w", err)
	}
	ifd0, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return nil, fmt.Errorf("failed to locate IFD0: %w", err)
	}
	if err := ifd0.SetStandardWithName("Orientation", []uint16{code}); err != nil {
		return nil, fmt.Errorf("failed to set orientation: %w", err)
	}
	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("failed to attach exif: %w", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to rewrite jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
