package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"bizdash/internal/core"
	"bizdash/internal/log"
	ports "bizdash/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName = "Report"
	// the series occupies A:D and the category table starts at F
	categoryAnchor  = "F1"
	clearColumns    = "A:G"
	valueInputUser  = "USER_ENTERED"
	exportRowsLimit = 10000
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	locale        string
	logger        *log.Logger
}

// Ensure interface conformance
var _ ports.ReportExporter = (*Client)(nil)

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetName, locale string, logger *log.Logger) *Client {
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		locale:        locale,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_REPORT_SHEET_NAME (default "Report"), MONTH_LABEL_LOCALE.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return New(svc,
		spreadsheetID,
		strings.TrimSpace(os.Getenv("GOOGLE_REPORT_SHEET_NAME")),
		strings.TrimSpace(os.Getenv("MONTH_LABEL_LOCALE")),
		logger), nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, logger *log.Logger) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.WithComponent(log.ComponentSheets).InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(credentialsJSON),
			"scope", gsheet.SpreadsheetsScope)
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func serviceAccountCredentials() ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// ExportMonthlySeries replaces the report sheet with the series table in
// A:D and the category table from F1.
func (c *Client) ExportMonthlySeries(ctx context.Context, series core.MonthlySeries, breakdown []core.CategoryCount) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(series.Buckets) > exportRowsLimit {
		return "", fmt.Errorf("series too long to export: %d months", len(series.Buckets))
	}

	clearRange := fmt.Sprintf("%s!%s", c.sheetName, clearColumns)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", clearRange, err)
	}

	seriesRows := ports.SeriesRows(series, c.locale)
	seriesRange := fmt.Sprintf("%s!A1:D%d", c.sheetName, len(seriesRows))
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, seriesRange, &gsheet.ValueRange{Values: seriesRows}).
		ValueInputOption(valueInputUser).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("update %s: %w", seriesRange, err)
	}

	categoryRange := fmt.Sprintf("%s!%s", c.sheetName, categoryAnchor)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, categoryRange, &gsheet.ValueRange{Values: ports.CategoryRows(breakdown)}).
		ValueInputOption(valueInputUser).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("update %s: %w", categoryRange, err)
	}

	c.logger.InfoContext(ctx, "Report exported to Google Sheets",
		log.FieldSheetsRef, seriesRange,
		log.FieldCount, len(series.Buckets),
		log.FieldOperation, log.OpExport)

	return seriesRange, nil
}
