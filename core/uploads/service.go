package uploads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"dataset-platform/core/apperr"
	"dataset-platform/core/auth"
	"dataset-platform/core/batches"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
	"dataset-platform/storage"
)

// ObjectStore is the slice of the storage layer the upload flow touches.
type ObjectStore interface {
	PresignPut(ctx context.Context, bucket, key, contentType string) (string, error)
	PresignGet(ctx context.Context, bucket, key string) (string, error)
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
}

// Service runs the two-phase asset upload: presign a direct-to-store PUT,
// then confirm and register the asset once the client reports completion.
type Service struct {
	batches   repository.Batches
	assets    repository.Assets
	store     ObjectStore
	bucket    string
	expiresIn int
}

// NewService creates an upload service writing into the given assets bucket.
// expiresIn is the presigned URL lifetime in seconds, reported back to clients.
func NewService(batchRepo repository.Batches, assetRepo repository.Assets, store ObjectStore, bucket string, expiresIn int) *Service {
	return &Service{batches: batchRepo, assets: assetRepo, store: store, bucket: bucket, expiresIn: expiresIn}
}

// PresignInput describes the file a client wants to upload.
type PresignInput struct {
	FileName    string
	ContentType string
	SHA256      string
}

// PresignResult carries the upload URL and the storage key the client must
// echo back on confirm.
type PresignResult struct {
	UploadURL string
	Key       string
	Bucket    string
	ExpiresIn int
}

// Presign authorizes the caller against the batch and returns a presigned
// PUT URL for a fresh storage key. Nothing is persisted until Confirm.
func (s *Service) Presign(ctx context.Context, user *models.User, batchID int64, in PresignInput) (*PresignResult, error) {
	if _, err := batches.Authorize(ctx, s.batches, user, batchID); err != nil {
		return nil, err
	}
	if in.SHA256 == "" {
		return nil, apperr.BadRequest("sha256 is required")
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := objectKey(batchID, in.FileName)
	url, err := s.store.PresignPut(ctx, s.bucket, key, contentType)
	if err != nil {
		return nil, apperr.Unavailable("object store unavailable", err)
	}
	return &PresignResult{UploadURL: url, Key: key, Bucket: s.bucket, ExpiresIn: s.expiresIn}, nil
}

// ConfirmInput identifies the uploaded object to register.
type ConfirmInput struct {
	Key         string
	FileName    string
	ContentType string
	SHA256      string
}

// Confirm verifies the object exists in the store and registers the asset.
// Presence is the only check: the declared sha256 is recorded for duplicate
// detection but not re-verified against the object body.
func (s *Service) Confirm(ctx context.Context, user *models.User, batchID int64, in ConfirmInput) (*models.Asset, error) {
	if _, err := batches.Authorize(ctx, s.batches, user, batchID); err != nil {
		return nil, err
	}
	if in.Key == "" {
		return nil, apperr.BadRequest("key is required")
	}
	if in.SHA256 == "" {
		return nil, apperr.BadRequest("sha256 is required")
	}

	exists, err := s.store.ObjectExists(ctx, s.bucket, in.Key)
	if err != nil {
		return nil, apperr.Unavailable("object store unavailable", err)
	}
	if !exists {
		return nil, apperr.BadRequest("object not found in store")
	}

	asset := &models.Asset{
		BatchID:     batchID,
		FileName:    in.FileName,
		ContentType: in.ContentType,
		StoragePath: storage.URI(s.bucket, in.Key),
		SHA256:      strings.ToLower(in.SHA256),
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, eris.Wrap(err, "uploads: create asset")
	}
	return asset, nil
}

// List returns the batch's assets in upload order.
func (s *Service) List(ctx context.Context, user *models.User, batchID int64) ([]*models.Asset, error) {
	if _, err := batches.Authorize(ctx, s.batches, user, batchID); err != nil {
		return nil, err
	}
	assets, err := s.assets.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "uploads: list assets")
	}
	return assets, nil
}

// AssetURL returns a presigned GET URL for one asset's content. Labelers get
// access too: they need the pixels to label them.
func (s *Service) AssetURL(ctx context.Context, user *models.User, assetID int64) (string, error) {
	asset, err := s.assets.Get(ctx, assetID)
	if err != nil {
		return "", eris.Wrap(err, "uploads: get asset")
	}
	if asset == nil {
		return "", apperr.NotFound("asset not found")
	}

	batch, err := s.batches.Get(ctx, asset.BatchID)
	if err != nil {
		return "", eris.Wrap(err, "uploads: get batch")
	}
	if batch == nil {
		return "", apperr.NotFound("batch not found")
	}
	if !auth.BatchPermission(user, batch).CanView() {
		return "", apperr.Forbidden("not allowed to view this asset")
	}

	bucket, key, err := storage.ParseURI(asset.StoragePath)
	if err != nil {
		return "", apperr.Internal("malformed storage path", err)
	}
	url, err := s.store.PresignGet(ctx, bucket, key)
	if err != nil {
		return "", apperr.Unavailable("object store unavailable", err)
	}
	return url, nil
}

// objectKey builds a collision-free storage key for an upload. The timestamp
// prefix keeps keys sortable; the filename is sanitized to a single path
// segment.
func objectKey(batchID int64, fileName string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("batches/%d/%s_%d_%s",
		batchID, now.Format("20060102_150405"), now.Nanosecond()/1000, sanitizeFileName(fileName))
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" {
		return "file.bin"
	}
	return name
}
