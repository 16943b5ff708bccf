// Package extractor is the HTTP client for the external document extraction service.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// maxResponseSize limits the extractor response body
	maxResponseSize = 4 * 1024 * 1024
	extractPath     = "/v1/extract"
	dateLayout      = "2006-01-02"
)

var (
	// ErrExtractorUnavailable is returned when the service cannot be reached
	ErrExtractorUnavailable = errors.New("extractor unavailable")
	// ErrExtractorRejected is returned for a non-2xx response
	ErrExtractorRejected = errors.New("extractor rejected document")
	// ErrMalformedResponse is returned when the response body cannot be decoded
	ErrMalformedResponse = errors.New("malformed extractor response")
)

// HTTPExtractor posts the document bytes to the extraction service and normalizes its answer.
// It makes exactly one attempt per call.
type HTTPExtractor struct {
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPExtractor creates an extractor client from configuration
func NewHTTPExtractor(cfg config.ExtractorConfig, logger *zap.Logger) (*HTTPExtractor, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("extractor endpoint is required")
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid extractor endpoint: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPExtractor{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// wireResponse is the extraction service's JSON answer
type wireResponse struct {
	ModelVersion      string                 `json:"modelVersion"`
	Confidence        *float64               `json:"confidence"`
	DocumentKind      string                 `json:"documentKind"`
	Receipt           *wireReceipt           `json:"receipt"`
	PlatformStatement *wirePlatformStatement `json:"platformStatement"`
}

type wireReceipt struct {
	Date     string           `json:"date"`
	Vendor   string           `json:"vendor"`
	Total    *decimal.Decimal `json:"total"`
	Tax      *decimal.Decimal `json:"tax"`
	Currency string           `json:"currency"`
	Category string           `json:"category"`
}

type wirePlatformStatement struct {
	Provider  string `json:"provider"`
	PeriodKey string `json:"periodKey"`
	Lines     []struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
	} `json:"lines"`
}

// Extract sends the document and returns the normalized result
func (e *HTTPExtractor) Extract(ctx context.Context, document io.Reader) (*receipt.ExtractionResult, error) {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	}()
	return e.extract(ctx, document)
}

func (e *HTTPExtractor) extract(ctx context.Context, document io.Reader) (*receipt.ExtractionResult, error) {
	target := e.endpoint + extractPath
	if e.model != "" {
		target += "?model=" + url.QueryEscape(e.model)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, document)
	if err != nil {
		return nil, fmt.Errorf("extractor: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("extractor: failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		e.logger.Warn("Extractor returned an error status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)),
		)
		return nil, fmt.Errorf("%w: HTTP %d", ErrExtractorRejected, resp.StatusCode)
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	doc, err := normalize(wire)
	if err != nil {
		return nil, err
	}
	if wire.Confidence != nil && (*wire.Confidence < 0 || *wire.Confidence > 1) {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, *wire.Confidence)
	}

	return &receipt.ExtractionResult{
		Normalized:   doc,
		Confidence:   wire.Confidence,
		ModelVersion: wire.ModelVersion,
		RawPayload:   json.RawMessage(body),
	}, nil
}

// normalize converts the wire answer into the tagged document union.
// Unknown kinds pass through so the evaluator can hold them.
func normalize(wire wireResponse) (receipt.NormalizedDocument, error) {
	switch receipt.DocumentKind(wire.DocumentKind) {
	case receipt.DocumentKindReceipt:
		fields := receipt.ReceiptFields{}
		if wire.Receipt != nil {
			fields.Vendor = strings.TrimSpace(wire.Receipt.Vendor)
			fields.Total = wire.Receipt.Total
			fields.Tax = wire.Receipt.Tax
			fields.Currency = strings.ToUpper(strings.TrimSpace(wire.Receipt.Currency))
			fields.Category = wire.Receipt.Category
			if wire.Receipt.Date != "" {
				d, err := time.Parse(dateLayout, wire.Receipt.Date)
				if err != nil {
					return receipt.NormalizedDocument{}, fmt.Errorf("%w: date %q", ErrMalformedResponse, wire.Receipt.Date)
				}
				fields.Date = &d
			}
		}
		return receipt.NewReceiptDocument(fields), nil
	case receipt.DocumentKindPlatformStatement:
		fields := receipt.PlatformStatementFields{}
		if ps := wire.PlatformStatement; ps != nil {
			fields.Provider = ps.Provider
			fields.PeriodKey = ps.PeriodKey
			for _, l := range ps.Lines {
				fields.Lines = append(fields.Lines, receipt.PlatformStatementLine{Description: l.Description, Amount: l.Amount})
			}
		}
		return receipt.NewPlatformStatementDocument(fields), nil
	default:
		return receipt.NormalizedDocument{Kind: receipt.DocumentKind(wire.DocumentKind)}, nil
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

var _ receipt.Extractor = (*HTTPExtractor)(nil)
