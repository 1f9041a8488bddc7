package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/folio/portfolio/models"
	"github.com/folio/portfolio/storage"
	"github.com/folio/portfolio/utils"
)

// multipartOverhead is the allowance for headers and boundaries on top of the file limit.
const multipartOverhead = 1 << 20

// MediaStore is the subset of storage.Store the media endpoints use.
type MediaStore interface {
	Save(c models.Collection, original, mimeType string, r io.Reader, limit int64) (models.StoredFile, error)
	List(c models.Collection) ([]models.StoredFile, error)
	Current(c models.Collection) (*models.StoredFile, error)
	Delete(c models.Collection, filename string) error
}

// mediaText holds the user-facing wording of one collection.
type mediaText struct {
	urlKey       string
	missing      string
	uploaded     string
	uploadFailed string
	listFailed   string
	deleted      string
	notFound     string
	deleteFailed string
}

var texts = map[string]mediaText{
	models.Gallery.Name: {
		urlKey:       "imageUrl",
		missing:      "No image file provided",
		uploaded:     "Image uploaded successfully",
		uploadFailed: "Failed to upload image",
		listFailed:   "Failed to retrieve images",
		deleted:      "Image deleted successfully",
		notFound:     "Image not found",
		deleteFailed: "Failed to delete image",
	},
	models.Profile.Name: {
		urlKey:       "profileUrl",
		missing:      "No profile image provided",
		uploaded:     "Profile picture uploaded successfully",
		uploadFailed: "Failed to upload profile picture",
		listFailed:   "Failed to retrieve profile picture",
		deleted:      "Profile picture deleted successfully",
		notFound:     "Profile picture not found",
		deleteFailed: "Failed to delete profile picture",
	},
}

// MediaController serves uploads, listings and deletions of stored images.
type MediaController struct {
	store    MediaStore
	maxBytes int64
}

// NewMediaController creates a MediaController accepting files up to maxBytes.
func NewMediaController(store MediaStore, maxBytes int64) *MediaController {
	return &MediaController{store: store, maxBytes: maxBytes}
}

// Upload accepts exactly one file in the collection's multipart field.
func (m *MediaController) Upload(col models.Collection) gin.HandlerFunc {
	text := texts[col.Name]
	return func(ctx *gin.Context) {
		file, err := m.receive(ctx, col, text)
		if err != nil {
			utils.Fail(ctx, err, text.uploadFailed)
			return
		}
		utils.Sugar.Infow("image uploaded", "collection", col.Name, "filename", file.Filename)
		utils.Success(ctx, text.uploaded, gin.H{
			text.urlKey: file.URL,
			"filename":  file.Filename,
		})
	}
}

// receive streams the multipart body part by part so a rejected file never touches disk.
func (m *MediaController) receive(ctx *gin.Context, col models.Collection, text mediaText) (models.StoredFile, error) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, m.maxBytes+multipartOverhead)
	mr, err := ctx.Request.MultipartReader()
	if err != nil {
		return models.StoredFile{}, utils.Validation(text.missing, err)
	}

	var saved *models.StoredFile
	// Any failure after a file was stored must take it back out.
	fail := func(err error) (models.StoredFile, error) {
		if saved != nil {
			if derr := m.store.Delete(col, saved.Filename); derr != nil {
				utils.Sugar.Warnw("cleanup of rejected upload failed", "filename", saved.Filename, "error", derr)
			}
		}
		return models.StoredFile{}, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(m.saveError(err, text))
		}
		if part.FileName() == "" {
			// plain form values are ignored
			_ = part.Close()
			continue
		}
		if part.FormName() != col.Field {
			_ = part.Close()
			return fail(utils.Validation(fmt.Sprintf("Unexpected field %q", part.FormName()), nil))
		}
		if saved != nil {
			_ = part.Close()
			return fail(utils.Validation("Only one file may be uploaded per request", nil))
		}

		f, err := m.store.Save(col, part.FileName(), part.Header.Get("Content-Type"), part, m.maxBytes)
		_ = part.Close()
		if err != nil {
			return fail(m.saveError(err, text))
		}
		saved = &f
	}

	if saved == nil {
		return models.StoredFile{}, utils.Validation(text.missing, nil)
	}
	return *saved, nil
}

func (m *MediaController) saveError(err error, text mediaText) error {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrNotImage):
		return utils.Validation("Only image files are allowed!", err)
	case errors.Is(err, storage.ErrTooLarge), errors.As(err, &tooBig):
		return utils.Validation(fmt.Sprintf("File too large. Maximum size is %dMB", m.maxBytes>>20), err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return utils.Validation("Malformed upload", err)
	default:
		return utils.Dependency(text.uploadFailed, err)
	}
}

// List returns every image of the collection as {images: [...]}.
func (m *MediaController) List(col models.Collection) gin.HandlerFunc {
	text := texts[col.Name]
	return func(ctx *gin.Context) {
		files, err := m.store.List(col)
		if err != nil {
			utils.Fail(ctx, utils.Dependency(text.listFailed, err), text.listFailed)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"images": files})
	}
}

// Current returns {profile: file|null} for the collection's current image.
func (m *MediaController) Current(col models.Collection) gin.HandlerFunc {
	text := texts[col.Name]
	return func(ctx *gin.Context) {
		file, err := m.store.Current(col)
		if err != nil {
			utils.Fail(ctx, utils.Dependency(text.listFailed, err), text.listFailed)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"profile": file})
	}
}

// Delete removes the file named by the :filename path segment.
func (m *MediaController) Delete(col models.Collection) gin.HandlerFunc {
	text := texts[col.Name]
	return func(ctx *gin.Context) {
		name := ctx.Param("filename")
		err := m.store.Delete(col, name)
		switch {
		case err == nil:
			utils.Sugar.Infow("image deleted", "collection", col.Name, "filename", name)
			utils.Success(ctx, text.deleted, nil)
		case errors.Is(err, storage.ErrInvalidName):
			utils.Fail(ctx, utils.Validation("Invalid filename", err), text.deleteFailed)
		case errors.Is(err, storage.ErrNotFound):
			utils.Fail(ctx, utils.NotFound(text.notFound, err), text.deleteFailed)
		default:
			utils.Fail(ctx, utils.Dependency(text.deleteFailed, err), text.deleteFailed)
		}
	}
}
