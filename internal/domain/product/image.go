package product

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/infrastructure/store"
	"github.com/example/retail-orders/internal/media"
)

// ImagePrefix is the blob folder holding product images.
const ImagePrefix = "product-images/"

// ImageBlobName is where the normalized image of a product is stored.
func ImageBlobName(productID string) string {
	return ImagePrefix + productID + ".jpg"
}

// UploadImage normalizes the picture, stores it and points the product at it.
func (s *Service) UploadImage(ctx context.Context, productID string, data []byte) (*Product, error) {
	if _, err := s.Get(ctx, productID); err != nil {
		return nil, err
	}

	jpg, err := media.NormalizeImage(data)
	if err != nil {
		return nil, err
	}

	uri, err := s.blobs.Put(ctx, ImageBlobName(productID), jpg, media.ContentTypeJPEG)
	if err != nil {
		return nil, fmt.Errorf("store product image: %w", err)
	}

	return s.setImageURL(ctx, productID, uri)
}

// LinkImage attaches an uploaded blob to its product. The product id is the
// blob's base name without extension; when no product has that id, products
// are scanned for a name equal to it or an id overlapping it. Finding no
// product is logged and is not an error.
func (s *Service) LinkImage(ctx context.Context, blobName, uri string) (*Product, error) {
	key := strings.TrimSuffix(path.Base(blobName), path.Ext(blobName))
	log := s.log.With(zap.String("blob", blobName), zap.String("key", key))

	p, err := s.setImageURL(ctx, key, uri)
	if err == nil {
		log.Info("product image linked", zap.String("product_id", p.ID))
		return p, nil
	}
	if !errors.Is(err, ErrProductNotFound) {
		return nil, err
	}

	match, err := s.findImageOwner(ctx, key)
	if err != nil {
		log.Error("failed to scan products for image", zap.Error(err))
		return nil, nil
	}
	if match == "" {
		log.Warn("no product matches image")
		return nil, nil
	}

	p, err = s.setImageURL(ctx, match, uri)
	if err != nil {
		return nil, err
	}
	log.Info("product image linked by scan", zap.String("product_id", p.ID))
	return p, nil
}

func (s *Service) findImageOwner(ctx context.Context, key string) (string, error) {
	all, err := s.repo.QueryByPartition(ctx, Partition)
	if err != nil {
		return "", err
	}
	lowerKey := strings.ToLower(key)
	for _, p := range all {
		if strings.EqualFold(p.Name, key) {
			return p.ID, nil
		}
		lowerID := strings.ToLower(p.ID)
		if lowerID != "" && lowerKey != "" &&
			(strings.Contains(lowerID, lowerKey) || strings.Contains(lowerKey, lowerID)) {
			return p.ID, nil
		}
	}
	return "", nil
}

func (s *Service) setImageURL(ctx context.Context, productID, uri string) (*Product, error) {
	p, _, err := store.Mutate(ctx, s.repo, Partition, productID, func(p *Product) (bool, error) {
		if p.ImageURL == uri {
			return false, nil
		}
		p.ImageURL = uri
		p.UpdatedAt = s.now().UTC()
		return true, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
