package http

import (
	"time"

	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/store"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DeduplicateRequest is the request body for POST /api/v1/suppliers/deduplicate.
type DeduplicateRequest struct {
	Mentions []dedup.Mention `json:"mentions"`
}

// DeduplicateResponse is the response body for POST /api/v1/suppliers/deduplicate.
type DeduplicateResponse struct {
	Suppliers      []dedup.Record `json:"suppliers"`
	TotalSuppliers int            `json:"total_suppliers"`
}

// HistoryResponse is the response body for GET /api/v1/history/:company.
type HistoryResponse struct {
	CompanyName string             `json:"company_name"`
	History     []store.Extraction `json:"history"`
}

// IgnoreListResponse is the response body for GET /api/v1/ignore-list.
type IgnoreListResponse struct {
	IgnoreList []string `json:"ignore_list"`
	Count      int      `json:"count"`
}

// IgnoreListActionRequest names the supplier to add or remove.
type IgnoreListActionRequest struct {
	SupplierName string `json:"supplier_name"`
}

// IgnoreListActionResponse reports the outcome of an ignore list change.
type IgnoreListActionResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// CacheClearResponse is the response body for DELETE /api/v1/cache[/:company].
type CacheClearResponse struct {
	CompanyName string `json:"company_name,omitempty"`
	Cleared     int    `json:"cleared"`
}
