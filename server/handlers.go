package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-wb/analysis"
	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/models"
	"github.com/aluiziolira/go-scrape-wb/pipeline"
	"github.com/aluiziolira/go-scrape-wb/scraper"
	"github.com/aluiziolira/go-scrape-wb/seo"
	"github.com/aluiziolira/go-scrape-wb/store"
)

type parseRequest struct {
	SellerURL string `json:"seller_url"`
	Format    string `json:"format"`
}

type parseResponse struct {
	Success        bool                  `json:"success"`
	ProductsCount  int64                 `json:"products_count"`
	Filename       string                `json:"filename"`
	FileSize       int64                 `json:"file_size"`
	TerminalReason models.TerminalReason `json:"terminal_reason"`
	Partial        bool                  `json:"partial"`
	RunID          string                `json:"run_id,omitempty"`
	Pages          int                   `json:"pages"`
	Requests       int                   `json:"requests"`
	Errors         int                   `json:"errors"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SellerURL) == "" {
		writeError(w, http.StatusBadRequest, "seller_url is required")
		return
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = s.cfg.OutputFormat
	}
	if !config.IsSupportedFormat(format) {
		writeError(w, http.StatusBadRequest, "unsupported format: "+req.Format)
		return
	}

	if !s.acquire() {
		writeError(w, http.StatusServiceUnavailable, "too many harvests in progress")
		return
	}
	defer s.release()

	target, err := s.resolver.Resolve(r.Context(), req.SellerURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.harvester.Harvest(r.Context(), target)
	run := &store.Run{
		Kind:       "parse",
		Target:     target.String(),
		Format:     format,
		Products:   len(result.Products),
		Reason:     string(result.Reason),
		Partial:    result.Partial(),
		Pages:      result.Pages,
		Requests:   result.Requests,
		Errors:     result.Errors,
		StartedAt:  result.StartTime,
		FinishedAt: result.EndTime,
	}
	// The harvest is done; a client that went away still gets its file.
	ctx := context.WithoutCancel(r.Context())

	if len(result.Products) == 0 {
		status, msg := emptyHarvestStatus(result.Reason)
		run.Error = msg
		s.recordRun(ctx, run)
		writeJSON(w, status, errorBody{Error: msg + " for " + target.String(), TerminalReason: result.Reason})
		return
	}

	filename := pipeline.FileName(format, s.now())
	path := filepath.Join(s.cfg.OutputDir, filename)
	processed, err := s.export(ctx, format, path, result.Products)
	if err != nil {
		run.Error = err.Error()
		s.recordRun(ctx, run)
		s.logger.Error("export failed", slog.String("target", target.String()), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	run.Filename = filename
	run.FileSize = size
	run.Products = int(processed)
	s.recordRun(ctx, run)

	writeJSON(w, http.StatusOK, parseResponse{
		Success:        true,
		ProductsCount:  processed,
		Filename:       filename,
		FileSize:       size,
		TerminalReason: result.Reason,
		Partial:        result.Partial(),
		RunID:          run.ID,
		Pages:          result.Pages,
		Requests:       result.Requests,
		Errors:         result.Errors,
	})
}

// emptyHarvestStatus maps a harvest that collected nothing to a response.
// Only a natural end means the target has no products; an early stop means
// the upstream failed or the run was interrupted.
func emptyHarvestStatus(reason models.TerminalReason) (int, string) {
	switch {
	case reason.Natural():
		return http.StatusNotFound, "no products found"
	case reason == models.ReasonUserCancelled:
		return http.StatusServiceUnavailable, "harvest cancelled before any products were collected"
	default:
		return http.StatusBadGateway, "upstream unavailable"
	}
}

// export writes products to the file at path and, when configured, to the
// extra sink. A sink that cannot be opened is logged and skipped.
func (s *Server) export(ctx context.Context, format, path string, products []*models.Product) (int64, error) {
	fileWriter, err := pipeline.NewWriter(format, path)
	if err != nil {
		return 0, err
	}
	var writer pipeline.OutputWriter = fileWriter
	if s.sink != nil {
		sink, err := s.sink(ctx)
		if err != nil {
			s.logger.Warn("product sink unavailable", slog.Any("error", err))
		} else {
			writer = pipeline.NewMultiWriter().With(format, fileWriter).With("sink", sink)
		}
	}
	return pipeline.Export(ctx, writer, s.cfg, products)
}

func (s *Server) recordRun(ctx context.Context, run *store.Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Record(ctx, run); err != nil {
		s.logger.Warn("record run failed", slog.Any("error", err))
	}
}

type checkPositionRequest struct {
	ProductURL string   `json:"product_url"`
	Keywords   []string `json:"keywords"`
}

type checkPositionResponse struct {
	Success bool                `json:"success"`
	Results []models.RankResult `json:"results"`
}

func (s *Server) handleCheckPosition(w http.ResponseWriter, r *http.Request) {
	var req checkPositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductURL) == "" {
		writeError(w, http.StatusBadRequest, "product_url is required")
		return
	}
	if len(req.Keywords) == 0 {
		writeError(w, http.StatusBadRequest, "keywords are required")
		return
	}

	if !s.acquire() {
		writeError(w, http.StatusServiceUnavailable, "too many harvests in progress")
		return
	}
	defer s.release()

	results, err := s.harvester.RankMany(r.Context(), req.ProductURL, req.Keywords)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, checkPositionResponse{Success: true, Results: results})
}

type adRatesRequest struct {
	Query  string `json:"query"`
	Region string `json:"region"`
}

func (s *Server) handleAdRates(w http.ResponseWriter, r *http.Request) {
	var req adRatesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := s.analysis.AdRates(r.Context(), req.Query, req.Region)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*models.AdRateReport
	}{true, report})
}

type productRequest struct {
	ProductURL string `json:"product_url"`
}

func (s *Server) handleCompetitors(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductURL) == "" {
		writeError(w, http.StatusBadRequest, "product_url is required")
		return
	}

	if !s.acquire() {
		writeError(w, http.StatusServiceUnavailable, "too many harvests in progress")
		return
	}
	defer s.release()

	report, err := s.analysis.Competitors(r.Context(), req.ProductURL)
	if err != nil {
		var notFound scraper.ErrNotFound
		switch {
		case errors.Is(err, scraper.ErrInvalidProductURL):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, analysis.ErrNoPeerQuery):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.logger.Error("competitor analysis failed", slog.String("product_url", req.ProductURL), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "competitor analysis failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*models.CompetitorReport
	}{true, report})
}

func (s *Server) handleSEO(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}
	productID, err := scraper.ProductIDFromURL(req.ProductURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var name, description, source string
	card, err := scraper.FetchCard(r.Context(), s.cfg, s.fetcher, productID)
	if err != nil {
		s.logger.Warn("product card unavailable", slog.String("product_id", productID), slog.Any("error", err))
	} else {
		name = card.Name
		if card.Description != "" {
			description, source = card.Description, scraper.SourceAPI
		}
	}
	if description == "" {
		description, source = s.descriptions.Without(scraper.SourceAPI).Describe(r.Context(), productID)
	}

	report := s.seo.Analyze(r.Context(), productID, name, description)
	report.DescriptionSource = source
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*seo.Report
	}{true, report})
}

var contentTypes = map[string]string{
	".csv":   "text/csv",
	".jsonl": "application/x-ndjson",
}

// validFilename accepts a bare export name: no directories, no traversal and
// a known extension.
func validFilename(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	_, ok := contentTypes[filepath.Ext(name)]
	return ok
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if !validFilename(name) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	file, err := os.Open(filepath.Join(s.cfg.OutputDir, name))
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	s.attachRun(r.Context(), w.Header(), name)
	w.Header().Set("Content-Type", contentTypes[filepath.Ext(name)])
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs := make([]*store.Run, 0)
	if s.runs != nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var err error
		if runs, err = s.runs.List(r.Context(), limit); err != nil {
			s.logger.Error("list runs failed", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "could not list runs")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// attachRun describes the run that produced an export in response headers,
// so a download of a partial harvest can be told apart from a complete one.
func (s *Server) attachRun(ctx context.Context, header http.Header, filename string) {
	if s.runs == nil {
		return
	}
	run, err := s.runs.FindByFilename(ctx, filename)
	if err != nil {
		if !errors.Is(err, store.ErrRunNotFound) {
			s.logger.Warn("lookup run for download failed", slog.String("filename", filename), slog.Any("error", err))
		}
		return
	}
	header.Set("X-Run-ID", run.ID)
	header.Set("X-Terminal-Reason", run.Reason)
	header.Set("X-Partial", strconv.FormatBool(run.Partial))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	run, err := s.runs.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	case err != nil:
		s.logger.Error("get run failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not load run")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}
