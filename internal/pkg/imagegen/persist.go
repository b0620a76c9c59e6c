package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/internal/pkg/imageprocessor"
	"github.com/trogdorcult/burninator/internal/pkg/objectstore"
)

// RecordStore is the part of the generated image repository the persister uses.
type RecordStore interface {
	GetByID(ctx context.Context, id uint) (*models.GeneratedImage, error)
	UpdateStored(ctx context.Context, id uint, fields map[string]any) error
}

// Persister copies a provider image into object storage with a WebP thumbnail.
type Persister struct {
	records    RecordStore
	objects    objectstore.Store
	keys       *objectstore.Config
	httpClient *http.Client
}

func NewPersister(records RecordStore, objects objectstore.Store, keys *objectstore.Config) *Persister {
	return &Persister{
		records:    records,
		objects:    objects,
		keys:       keys,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Persist is idempotent: a record that already has a stored key is left alone.
func (p *Persister) Persist(ctx context.Context, imageID uint) error {
	img, err := p.records.GetByID(ctx, imageID)
	if err != nil {
		return fmt.Errorf("load generated image %d: %w", imageID, err)
	}
	if img.StoredKey != "" {
		return nil
	}

	data, err := p.download(ctx, img.ImageURL)
	if err != nil {
		return err
	}
	res, err := imageprocessor.Process(data)
	if err != nil {
		return fmt.Errorf("process image %d: %w", imageID, err)
	}

	id := fmt.Sprintf("%d-%s", img.ID, img.ProviderID)
	at := img.GeneratedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	origKey := p.keys.ObjectKey(id, "", res.Ext, at)
	thumbKey := p.keys.ObjectKey(id, "_thumb", ".webp", at)

	origURL, err := p.objects.Put(ctx, origKey, data, res.ContentType)
	if err != nil {
		return err
	}
	thumbURL, err := p.objects.Put(ctx, thumbKey, res.Thumbnail, "image/webp")
	if err != nil {
		return err
	}

	log.Infof("[ImageGen] Persisted image %d to %s", imageID, origKey)
	return p.records.UpdateStored(ctx, imageID, map[string]any{
		"image_url":     origURL,
		"thumbnail_url": thumbURL,
		"stored_key":    origKey,
		"width":         res.Width,
		"height":        res.Height,
	})
}

func (p *Persister) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("image has no source url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, imageprocessor.MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	if len(data) > imageprocessor.MaxSourceBytes {
		return nil, fmt.Errorf("download image: larger than %d bytes", imageprocessor.MaxSourceBytes)
	}
	return data, nil
}
