// Package media turns uploaded files into stored MediaItems and stored
// MediaItems into signed views.
package media

import (
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Upload is one file of a multipart request. Open may be called more than
// once.
type Upload struct {
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FromFileHeader adapts a parsed multipart file.
func FromFileHeader(fh *multipart.FileHeader) Upload {
	return Upload{
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// Dirs says where a pipeline stores its files and their thumbnails.
type Dirs struct {
	Media      string
	Thumbnails string
}

// MessageDirs scopes message media to the sender and receiver. Thumbnails
// sit next to the video they were taken from.
func MessageDirs(senderID, receiverID uuid.UUID) Dirs {
	dir := path.Join("messages", senderID.String(), receiverID.String())
	return Dirs{Media: dir, Thumbnails: dir}
}

func PostDirs(userID uuid.UUID) Dirs {
	return Dirs{
		Media:      path.Join("posts", userID.String()),
		Thumbnails: path.Join("thumbnails", userID.String()),
	}
}

func AvatarDirs(userID uuid.UUID) Dirs {
	dir := path.Join("avatars", userID.String())
	return Dirs{Media: dir, Thumbnails: dir}
}

// IsVideo reports whether contentType names a video format.
func IsVideo(contentType string) bool {
	return strings.HasPrefix(contentType, "video/")
}

// IsImage reports whether contentType names an image format.
func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// extension picks a file extension for contentType, dot included.
func extension(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if _, sub, ok := strings.Cut(contentType, "/"); ok && sub != "" {
		sub, _, _ = strings.Cut(sub, ";")
		return "." + strings.TrimSpace(sub)
	}
	return ".bin"
}

// DetectType returns the declared content type of up, or sniffs the body
// when the declared type is missing or generic.
func DetectType(up Upload) (string, error) {
	declared, _, _ := strings.Cut(up.ContentType, ";")
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}

	rc, err := up.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	m, err := mimetype.DetectReader(rc)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	ct, _, _ := strings.Cut(m.String(), ";")
	return ct, nil
}
