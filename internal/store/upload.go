package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dmorgan81/customid/internal/log"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// FileUploader archives into a local directory, for running outside AWS.
type FileUploader struct {
	Dir string
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	path := filepath.Join(u.Dir, filepath.FromSlash(params.Name))
	log := log.FromContextOrDiscard(ctx).WithGroup("file")
	log.Info("writing", "file", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, params.Data, 0o600)
}
