package api

import (
	"net/http"

	"github.com/example/retail-orders/internal/domain/order"
	"github.com/example/retail-orders/internal/payment"
)

type proofResponse struct {
	OrderID  string       `json:"order_id"`
	Status   order.Status `json:"status"`
	BlobName string       `json:"blob_name"`
	URI      string       `json:"uri"`
}

// UploadPaymentProof accepts a multipart "proof" file and an optional
// "orderId" field. Without the field the order id is taken from the file name.
func (h *Handlers) UploadPaymentProof(w http.ResponseWriter, r *http.Request) {
	data, fileName, err := readUpload(w, r, "proof", payment.MaxProofSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	receipt, err := h.proofs.Upload(r.Context(), r.FormValue("orderId"), fileName, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, proofResponse{
		OrderID:  receipt.Order.ID,
		Status:   receipt.Order.Status,
		BlobName: receipt.BlobName,
		URI:      receipt.URI,
	})
}
