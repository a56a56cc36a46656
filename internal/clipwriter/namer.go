// Package clipwriter turns segment audio into timestamp-named files in the output directory.
package clipwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/audiocore/export"
	"github.com/tphakala/voicerec/internal/errors"
)

const (
	// maxNameSuffix bounds the -N suffixes tried for one timestamp
	maxNameSuffix = 999

	// issuedNameTTL is how long a name handed out without a file on disk stays reserved
	issuedNameTTL = 10 * time.Minute
)

// ErrNoFreeName is returned when every suffix for a timestamp is taken
var ErrNoFreeName = errors.NewStd("no free segment file name")

// Namer hands out unique segment paths named after the segment start time,
// YYYYMMDDHHMMSS.wav, adding -1, -2 and so on when the name is already in use.
type Namer struct {
	dir    string
	exts   []string
	issued *cache.Cache
	create func(path string, format audiocore.AudioFormat) (*export.WAVWriter, error)
}

// NewNamer creates dir if needed. A name counts as taken if a file with the WAV extension
// or any of the extra extensions exists, so encoded outputs are never overwritten.
func NewNamer(dir string, extraExts ...string) (*Namer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // output directory is shared with other tools
		return nil, errors.New(err).
			Component("clipwriter").
			Category(errors.CategoryFileIO).
			Context("operation", "create_output_dir").
			Context("dir", dir).
			Build()
	}
	exts := append([]string{export.Extension(export.FormatWAV)}, extraExts...)
	return &Namer{
		dir:    dir,
		exts:   exts,
		issued: cache.New(issuedNameTTL, cache.NoExpiration),
		create: export.CreateWAV,
	}, nil
}

// Dir returns the output directory.
func (n *Namer) Dir() string { return n.dir }

func (n *Namer) base(start time.Time, suffix int) string {
	stamp := start.Format(export.TimestampLayout)
	if suffix == 0 {
		return stamp
	}
	return fmt.Sprintf("%s-%d", stamp, suffix)
}

func (n *Namer) inUse(base string) bool {
	for _, ext := range n.exts {
		if _, err := os.Stat(filepath.Join(n.dir, base+"."+ext)); err == nil {
			return true
		}
	}
	return false
}

// Reserve returns a free WAV path for start without creating the file.
func (n *Namer) Reserve(start time.Time) (string, error) {
	n.issued.DeleteExpired()
	for suffix := 0; suffix <= maxNameSuffix; suffix++ {
		base := n.base(start, suffix)
		if n.inUse(base) {
			continue
		}
		if err := n.issued.Add(base, struct{}{}, cache.DefaultExpiration); err != nil {
			continue
		}
		return filepath.Join(n.dir, base+"."+export.Extension(export.FormatWAV)), nil
	}
	return "", errors.New(ErrNoFreeName).
		Component("clipwriter").
		Category(errors.CategoryFileIO).
		Context("dir", n.dir).
		Context("timestamp", start.Format(export.TimestampLayout)).
		Build()
}

// Create reserves a name for start and opens a WAV writer on it.
func (n *Namer) Create(start time.Time, format audiocore.AudioFormat) (*export.WAVWriter, error) {
	for range maxNameSuffix + 1 {
		path, err := n.Reserve(start)
		if err != nil {
			return nil, err
		}
		w, err := n.create(path, format)
		if err == nil {
			return w, nil
		}
		// another process created the file between the check and the open
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return nil, err
	}
	return nil, errors.New(ErrNoFreeName).
		Component("clipwriter").
		Category(errors.CategoryFileIO).
		Context("dir", n.dir).
		Build()
}
