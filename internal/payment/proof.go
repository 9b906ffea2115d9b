package payment

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/apperr"
	"github.com/example/retail-orders/internal/domain/order"
	"github.com/example/retail-orders/internal/infrastructure/blob"
	"github.com/example/retail-orders/internal/media"
)

const (
	// ProofPrefix is the blob folder holding payment proofs.
	ProofPrefix = "payment-proofs/"
	// MaxProofSize caps an uploaded proof document.
	MaxProofSize = 10 << 20
)

var (
	ErrMissingOrderID   = fmt.Errorf("%w: order id is required", apperr.ErrInvalidInput)
	ErrEmptyProof       = fmt.Errorf("%w: proof document is empty", apperr.ErrInvalidInput)
	ErrProofTooLarge    = fmt.Errorf("%w: proof document exceeds %d bytes", apperr.ErrInvalidInput, MaxProofSize)
	ErrUnsupportedProof = fmt.Errorf("%w: proof must be a PDF, PNG or JPEG", apperr.ErrInvalidInput)
)

// OrderLookup reads orders.
type OrderLookup interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// ProofAcceptor moves an order forward once its proof is stored.
type ProofAcceptor interface {
	OnProofAccepted(ctx context.Context, orderID string) (*order.Order, error)
}

// Receipt describes a stored proof.
type Receipt struct {
	Order    *order.Order
	BlobName string
	URI      string
}

type ProofService struct {
	orders OrderLookup
	sm     ProofAcceptor
	blobs  blob.Store
	log    *zap.Logger
	now    func() time.Time
}

func NewProofService(orders OrderLookup, sm ProofAcceptor, blobs blob.Store, log *zap.Logger) *ProofService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProofService{orders: orders, sm: sm, blobs: blobs, log: log, now: time.Now}
}

// OrderIDFromFileName returns the part of the file's base name before the
// first underscore.
func OrderIDFromFileName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if i := strings.Index(base, "_"); i > 0 {
		return strings.TrimSpace(base[:i])
	}
	return ""
}

// BlobName builds payment-proofs/<order-id>_<yyyyMMddHHmmssfff><ext>.
func BlobName(orderID string, at time.Time, ext string) string {
	at = at.UTC()
	return fmt.Sprintf("%s%s_%s%03d%s", ProofPrefix, orderID, at.Format("20060102150405"), at.Nanosecond()/int(time.Millisecond), ext)
}

// Upload stores a payment proof and advances the order. When orderID is blank
// it is taken from the file name. The order is checked before anything is
// stored so a rejected order leaves no blob behind.
func (s *ProofService) Upload(ctx context.Context, orderID, fileName string, data []byte) (*Receipt, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		orderID = OrderIDFromFileName(fileName)
	}
	if orderID == "" {
		return nil, ErrMissingOrderID
	}
	if len(data) == 0 {
		return nil, ErrEmptyProof
	}
	if len(data) > MaxProofSize {
		return nil, ErrProofTooLarge
	}

	ct := media.DetectContentType(data)
	switch ct {
	case media.ContentTypePDF, media.ContentTypePNG, media.ContentTypeJPEG:
	default:
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedProof, ct)
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.CheckPaymentAccepted(o); err != nil {
		return nil, err
	}

	name := BlobName(orderID, s.now(), media.Extension(ct))
	uri, err := s.blobs.Put(ctx, name, data, ct)
	if err != nil {
		return nil, fmt.Errorf("store payment proof: %w", err)
	}

	o, err = s.sm.OnProofAccepted(ctx, orderID)
	if err != nil {
		s.log.Error("payment proof stored but order not updated",
			zap.String("order_id", orderID),
			zap.String("blob", name),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("payment proof uploaded",
		zap.String("order_id", orderID),
		zap.String("blob", name),
		zap.String("status", string(o.Status)))
	return &Receipt{Order: o, BlobName: name, URI: uri}, nil
}
