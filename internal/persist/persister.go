// Package persist writes report artifacts to disk exactly once.
package persist

import (
	"encoding/base64"
	"errors"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"go.uber.org/zap"
)

// base64Marker separates the media type of a data URI from its payload.
const base64Marker = ";base64,"

const filePerm = 0o644

// Persister is a write-once artifact store. An existing file at the
// destination is never replaced.
type Persister struct {
	fs     afero.Fs
	logger *zap.Logger
}

// New creates a persister over fs. A nil fs means the OS filesystem.
func New(fs afero.Fs, logger *zap.Logger) *Persister {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{fs: fs, logger: logger.Named("persist")}
}

// Resolve expands a leading ~ in path.
func Resolve(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", schemas.NewError(schemas.ErrCodeFilesystem, "resolve destination", err)
	}
	return expanded, nil
}

// Check fails with ErrDestinationExists when something is already at path.
func (p *Persister) Check(path string) error {
	exists, err := afero.Exists(p.fs, path)
	if err != nil {
		return schemas.NewError(schemas.ErrCodeFilesystem, "check destination", err)
	}
	if exists {
		return schemas.ErrDestinationExists
	}
	return nil
}

// Write stores artifact at path. Binary formats carry a base64 data URI
// that is decoded first; csv is written verbatim. The file is created with
// O_EXCL, so a file that appeared since Check is still not replaced.
func (p *Persister) Write(path string, format schemas.Format, artifact schemas.Artifact) error {
	if err := p.Check(path); err != nil {
		return err
	}

	data, err := decode(format, artifact.DataURL)
	if err != nil {
		return err
	}

	f, err := p.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return schemas.ErrDestinationExists
		}
		return schemas.NewError(schemas.ErrCodeFilesystem, "create "+path, err)
	}

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		// Never leave a truncated artifact behind.
		if rerr := p.fs.Remove(path); rerr != nil {
			p.logger.Warn("Failed to remove partial artifact.", zap.String("path", path), zap.Error(rerr))
		}
		return schemas.NewError(schemas.ErrCodeFilesystem, "write "+path, werr)
	}

	p.logger.Info("Artifact written.",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)),
		zap.Int64("time_created", artifact.TimeCreated))
	return nil
}

func decode(format schemas.Format, payload string) ([]byte, error) {
	if !format.IsBinary() {
		return []byte(payload), nil
	}
	encoded := payload
	if i := strings.LastIndex(payload, base64Marker); i >= 0 {
		encoded = payload[i+len(base64Marker):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeFilesystem, "decode "+string(format)+" payload", err)
	}
	return data, nil
}
