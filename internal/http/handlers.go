package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supplierd/internal/cache"
	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/pipeline"
	"github.com/fyrsmithlabs/supplierd/internal/store"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: s.now().UTC()})
}

// handleReady reports whether the backing store answers.
func (s *Server) handleReady(c echo.Context) error {
	if st := s.registry.Store(); st != nil {
		if err := st.Ping(c.Request().Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Timestamp: s.now().UTC()})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ready", Timestamp: s.now().UTC()})
}

// handleExtract runs the extraction pipeline for one company.
func (s *Server) handleExtract(c echo.Context) error {
	var req pipeline.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid extract request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.registry.Pipeline().Extract(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyCompany) {
			return echo.NewHTTPError(http.StatusBadRequest, "company_name field is required")
		}
		s.logger.Error("extraction failed", zap.String("company", req.CompanyName), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Extraction failed: %v", err))
	}

	return c.JSON(http.StatusOK, res)
}

// handleDeduplicate merges caller-supplied mentions.
func (s *Server) handleDeduplicate(c echo.Context) error {
	var req DeduplicateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	records, err := s.registry.Pipeline().Deduplicate(req.Mentions)
	if err != nil {
		if errors.Is(err, dedup.ErrInvalidMention) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if records == nil {
		records = []dedup.Record{}
	}

	return c.JSON(http.StatusOK, DeduplicateResponse{
		Suppliers:      records,
		TotalSuppliers: len(records),
	})
}

// handleHistory lists recorded extractions for a company.
func (s *Server) handleHistory(c echo.Context) error {
	company := companyParam(c)

	limit := store.DefaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	history, err := s.registry.Pipeline().History(c.Request().Context(), company, limit)
	if err != nil {
		return s.auditError(err, "Failed to get history")
	}
	if history == nil {
		history = []store.Extraction{}
	}

	return c.JSON(http.StatusOK, HistoryResponse{CompanyName: company, History: history})
}

// handleStatistics returns extraction counts.
func (s *Server) handleStatistics(c echo.Context) error {
	stats, err := s.registry.Pipeline().Statistics(c.Request().Context())
	if err != nil {
		return s.auditError(err, "Failed to get statistics")
	}
	return c.JSON(http.StatusOK, stats)
}

// companyParam returns the unescaped :company path segment.
func companyParam(c echo.Context) string {
	raw := c.Param("company")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (s *Server) auditError(err error, msg string) error {
	if errors.Is(err, pipeline.ErrNoAuditLog) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	s.logger.Error(strings.ToLower(msg), zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("%s: %v", msg, err))
}

// handleIgnoreList returns the ignore list in file order.
func (s *Server) handleIgnoreList(c echo.Context) error {
	names := s.registry.IgnoreList().List()
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, IgnoreListResponse{IgnoreList: names, Count: len(names)})
}

func (s *Server) bindSupplierName(c echo.Context) (string, error) {
	var req IgnoreListActionRequest
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	name := strings.TrimSpace(req.SupplierName)
	if name == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "supplier_name field is required")
	}
	return name, nil
}

// handleIgnoreAdd appends a supplier to the ignore list.
func (s *Server) handleIgnoreAdd(c echo.Context) error {
	name, err := s.bindSupplierName(c)
	if err != nil {
		return err
	}

	if err := s.registry.IgnoreList().Add(name); err != nil {
		s.logger.Error("failed to add to ignore list", zap.String("supplier", name), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to add supplier to ignore list")
	}

	return c.JSON(http.StatusOK, IgnoreListActionResponse{
		Message: fmt.Sprintf("Added '%s' to ignore list", name),
		Success: true,
	})
}

// handleIgnoreRemove drops a supplier from the ignore list.
func (s *Server) handleIgnoreRemove(c echo.Context) error {
	name, err := s.bindSupplierName(c)
	if err != nil {
		return err
	}

	removed, err := s.registry.IgnoreList().Remove(name)
	if err != nil {
		s.logger.Error("failed to remove from ignore list", zap.String("supplier", name), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to remove supplier from ignore list")
	}
	if !removed {
		return echo.NewHTTPError(http.StatusNotFound, "Supplier not found in ignore list")
	}

	return c.JSON(http.StatusOK, IgnoreListActionResponse{
		Message: fmt.Sprintf("Removed '%s' from ignore list", name),
		Success: true,
	})
}

// handleIgnoreReload rereads the ignore list file.
func (s *Server) handleIgnoreReload(c echo.Context) error {
	s.registry.IgnoreList().Reload()
	return c.JSON(http.StatusOK, IgnoreListActionResponse{
		Message: "Ignore list reloaded successfully",
		Success: true,
	})
}

// handleClearCache removes the cached result for one company.
func (s *Server) handleClearCache(c echo.Context) error {
	company := companyParam(c)
	n, err := s.registry.Pipeline().ClearCache(c.Request().Context(), company)
	if err != nil {
		return s.cacheError(err)
	}
	return c.JSON(http.StatusOK, CacheClearResponse{CompanyName: company, Cleared: n})
}

// handleClearAllCaches removes every cached result.
func (s *Server) handleClearAllCaches(c echo.Context) error {
	n, err := s.registry.Pipeline().ClearAllCaches(c.Request().Context())
	if err != nil {
		return s.cacheError(err)
	}
	return c.JSON(http.StatusOK, CacheClearResponse{Cleared: n})
}

func (s *Server) cacheError(err error) error {
	if errors.Is(err, cache.ErrClearUnsupported) {
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	}
	s.logger.Error("failed to clear cache", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Failed to clear cache: %v", err))
}
