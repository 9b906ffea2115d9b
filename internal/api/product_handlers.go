package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/example/retail-orders/internal/apperr"
	"github.com/example/retail-orders/internal/domain/product"
)

// maxImageSize bounds product image uploads before decoding.
const maxImageSize = 8 << 20

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock"`
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := product.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	}
	if req.Stock != nil {
		in.Stock = *req.Stock
	}

	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), product.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	res, err := h.products.Delete(r.Context(), chi.URLParam(r, "id"))
	h.respondDelete(w, r, res, err)
}

// UploadProductImage accepts a multipart "image" file.
func (h *Handlers) UploadProductImage(w http.ResponseWriter, r *http.Request) {
	data, _, err := readUpload(w, r, "image", maxImageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.products.UploadImage(r.Context(), chi.URLParam(r, "id"), data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// readUpload reads one multipart file field, capped at limit bytes.
func readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, "", fmt.Errorf("%w: invalid multipart form", apperr.ErrInvalidInput)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing %q file", apperr.ErrInvalidInput, field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read upload", apperr.ErrInvalidInput)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrInvalidInput, limit)
	}
	return data, header.Filename, nil
}
