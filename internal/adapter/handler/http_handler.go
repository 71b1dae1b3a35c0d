package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rl1809/patrion/internal/core/service"
)

const (
	idempotencyHeader = "Idempotency-Key"
	multipartMemory   = 8 << 20
	photoField        = "photo"
)

type HTTPHandler struct {
	inventory      *service.InventoryService
	sectors        *service.SectorService
	logger         *zap.Logger
	metrics        *Metrics
	maxUploadBytes int64
}

type Response struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	AssetNumber string `json:"assetNumber,omitempty"`
}

// itemRequest is the JSON form of a create or update. Absent fields are nil.
type itemRequest struct {
	AssetNumber         *string  `json:"assetNumber"`
	PreviousAssetNumber *string  `json:"previousAssetNumber"`
	Description         *string  `json:"description"`
	Classification      *string  `json:"classification"`
	SectorID            *string  `json:"sectorId"`
	Sector              *string  `json:"sector"`
	OtherIdentification *string  `json:"otherIdentification"`
	Notes               *string  `json:"notes"`
	PhotoURL            *string  `json:"photoUrl"`
	AcquisitionValue    *float64 `json:"acquisitionValue"`
	AcquisitionDate     *string  `json:"acquisitionDate"`
	DepreciationRate    *float64 `json:"depreciationRatePercentPerYear"`
}

func NewHTTPHandler(inventory *service.InventoryService, sectors *service.SectorService, logger *zap.Logger, metrics *Metrics, maxUploadBytes int64) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		inventory:      inventory,
		sectors:        sectors,
		logger:         logger,
		metrics:        metrics,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *HTTPHandler) ListSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := h.sectors.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sectors)
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.List(r.Context(), r.URL.Query().Get("sectorId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.inventory.Summary(r.Context(), r.URL.Query().Get("sectorId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.inventory.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// GetByAssetNumber answers the smart-search lookup. A miss echoes the asset
// number so the client can offer to register it.
func (h *HTTPHandler) GetByAssetNumber(w http.ResponseWriter, r *http.Request) {
	assetNumber := chi.URLParam(r, "assetNumber")
	item, err := h.inventory.GetByAssetNumber(r.Context(), assetNumber)
	if errors.Is(err, service.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, Response{
			Success:     false,
			Message:     "item not found",
			AssetNumber: assetNumber,
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	req, photo, err := h.decodeItem(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if photo != nil {
		defer photo.close()
	}

	in, err := req.input()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.inventory.Create(r.Context(), in, photo.upload(), strings.TrimSpace(r.Header.Get(idempotencyHeader)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.mutation("create")
	writeJSON(w, http.StatusCreated, item)
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	req, photo, err := h.decodeItem(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if photo != nil {
		defer photo.close()
	}

	patch, err := req.patch()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.inventory.Update(r.Context(), chi.URLParam(r, "id"), patch, photo.upload())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.mutation("update")
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.mutation("delete")
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "item deleted",
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeItem reads a JSON or multipart body. The returned photo is nil when
// none was attached.
func (h *HTTPHandler) decodeItem(w http.ResponseWriter, r *http.Request) (*itemRequest, *formPhoto, error) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return decodeMultipart(r)
	case "application/json", "":
		var req itemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, nil, fmt.Errorf("invalid request body: %w: %w", service.ErrInvalidInput, err)
		}
		return &req, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported content type %q: %w", mediaType, service.ErrInvalidInput)
	}
}

func decodeMultipart(r *http.Request) (*itemRequest, *formPhoto, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart body: %w: %w", service.ErrInvalidInput, err)
	}

	form := r.MultipartForm.Value
	text := func(key string) *string {
		if v, ok := form[key]; ok && len(v) > 0 {
			return &v[0]
		}
		return nil
	}
	number := func(key string) (*float64, error) {
		v := text(key)
		if v == nil || strings.TrimSpace(*v) == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", key, service.ErrInvalidInput)
		}
		return &f, nil
	}

	req := &itemRequest{
		AssetNumber:         text("assetNumber"),
		PreviousAssetNumber: text("previousAssetNumber"),
		Description:         text("description"),
		Classification:      text("classification"),
		SectorID:            text("sectorId"),
		Sector:              text("sector"),
		OtherIdentification: text("otherIdentification"),
		Notes:               text("notes"),
		PhotoURL:            text("photoUrl"),
		AcquisitionDate:     text("acquisitionDate"),
	}
	var err error
	if req.AcquisitionValue, err = number("acquisitionValue"); err != nil {
		return nil, nil, err
	}
	if req.DepreciationRate, err = number("depreciationRatePercentPerYear"); err != nil {
		return nil, nil, err
	}

	photo, err := openPhoto(r)
	if err != nil {
		return nil, nil, err
	}
	return req, photo, nil
}

func (req *itemRequest) sectorID() *string {
	if req.SectorID != nil {
		return req.SectorID
	}
	return req.Sector
}

func (req *itemRequest) input() (service.ItemInput, error) {
	date, err := parseDate(req.AcquisitionDate)
	if err != nil {
		return service.ItemInput{}, err
	}
	return service.ItemInput{
		AssetNumber:         deref(req.AssetNumber),
		PreviousAssetNumber: deref(req.PreviousAssetNumber),
		Description:         deref(req.Description),
		Classification:      deref(req.Classification),
		SectorID:            deref(req.sectorID()),
		OtherIdentification: deref(req.OtherIdentification),
		Notes:               deref(req.Notes),
		PhotoURL:            deref(req.PhotoURL),
		AcquisitionValue:    req.AcquisitionValue,
		AcquisitionDate:     date,
		DepreciationRate:    req.DepreciationRate,
	}, nil
}

func (req *itemRequest) patch() (service.ItemPatch, error) {
	date, err := parseDate(req.AcquisitionDate)
	if err != nil {
		return service.ItemPatch{}, err
	}
	return service.ItemPatch{
		AssetNumber:         req.AssetNumber,
		PreviousAssetNumber: req.PreviousAssetNumber,
		Description:         req.Description,
		Classification:      req.Classification,
		SectorID:            req.sectorID(),
		OtherIdentification: req.OtherIdentification,
		Notes:               req.Notes,
		AcquisitionValue:    req.AcquisitionValue,
		AcquisitionDate:     date,
		DepreciationRate:    req.DepreciationRate,
	}, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Blank is absent.
func parseDate(v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	s := strings.TrimSpace(*v)
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("acquisitionDate %q is not a date: %w", s, service.ErrInvalidInput)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formPhoto is an uploaded multipart file still owned by the request.
type formPhoto struct {
	file        io.ReadCloser
	body        io.Reader
	filename    string
	contentType string
	size        int64
}

func openPhoto(r *http.Request) (*formPhoto, error) {
	file, header, err := r.FormFile(photoField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid photo upload: %w", service.ErrInvalidInput)
	}

	p := &formPhoto{
		file:        file,
		body:        file,
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		size:        header.Size,
	}
	if p.contentType == "" || p.contentType == "application/octet-stream" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(file, head)
		p.contentType = http.DetectContentType(head[:n])
		p.body = io.MultiReader(bytes.NewReader(head[:n]), file)
	}
	return p, nil
}

func (p *formPhoto) upload() *service.Photo {
	if p == nil {
		return nil
	}
	return &service.Photo{
		Filename:    p.filename,
		ContentType: p.contentType,
		Size:        p.size,
		Body:        p.body,
	}
}

func (p *formPhoto) close() {
	_ = p.file.Close()
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		status = http.StatusRequestEntityTooLarge
		message = "request body too large"
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, service.ErrDuplicateRequest):
		status = http.StatusConflict
		message = "duplicate request"
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, service.ErrMediaUnavailable):
		status = http.StatusBadGateway
		message = "photo storage unavailable"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		h.logger.Debug("request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	writeJSON(w, status, Response{
		Success: false,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
