package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
)

// DefaultBaseURL is the spreadsheet values API root.
const DefaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// Config holds the remote backend coordinates and credentials.
type Config struct {
	// SpreadsheetID addresses the shared spreadsheet.
	SpreadsheetID string

	// APIKey authorizes reads.
	APIKey string

	// Token is a bearer token authorizing direct append writes.
	Token string

	// ScriptURL is the write-through web-app endpoint. When set it is
	// tried before the direct append path, since it needs no token.
	ScriptURL string

	// BaseURL overrides the values API root (tests).
	BaseURL string

	// EntrySheets and PeopleSheet configure destination routing.
	EntrySheets []string
	PeopleSheet string

	// HTTPClient overrides the transport. Per-call deadlines come from
	// the caller's context; no client-level timeout is set here.
	HTTPClient *http.Client

	// Logger for adapter activity. Nil means stderr default.
	Logger *log.Logger
}

// HTTPClient implements Client against the spreadsheet REST API with an
// optional script write-through path.
type HTTPClient struct {
	cfg    Config
	router *Router
	http   *http.Client
	logger *log.Logger
}

// New creates a remote backend client.
func New(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sheets] ", log.LstdFlags)
	}
	return &HTTPClient{
		cfg:    cfg,
		router: NewRouter(cfg.EntrySheets, cfg.PeopleSheet),
		http:   cfg.HTTPClient,
		logger: cfg.Logger,
	}
}

// Router exposes the destination router (diagnostics, tests).
func (c *HTTPClient) Router() *Router {
	return c.router
}

// AppendEntry appends one entry row to its course/branch-derived sheet.
func (c *HTTPClient) AppendEntry(ctx context.Context, row EntryRow) error {
	sheet := c.router.SheetFor(row.Course, row.Branch)
	values := []any{row.Date, row.Time, row.Kind, row.PersonName,
		row.EnrollmentNo, row.Course, row.Branch, row.Semester}
	return c.appendRow(ctx, "addEntry", sheet, values)
}

// AppendPerson appends one person row to the People sheet.
func (c *HTTPClient) AppendPerson(ctx context.Context, row PersonRow) error {
	values := []any{row.ID, row.Name, row.EnrollmentNo, row.Email, row.Phone,
		row.Course, row.Branch, row.Semester, row.CreatedDate, row.CreatedTime}
	return c.appendRow(ctx, "addPerson", c.router.PeopleSheet, values)
}

// appendRow tries the script write-through first, then the direct
// values append. The two transports are one logical operation with a
// single outcome.
func (c *HTTPClient) appendRow(ctx context.Context, action, sheet string, values []any) error {
	var scriptErr error
	if c.cfg.ScriptURL != "" {
		scriptErr = c.postScript(ctx, action, sheet, values)
		if scriptErr == nil {
			return nil
		}
		c.logger.Printf("script write failed, trying direct append: %v", scriptErr)
	}

	if c.cfg.Token != "" {
		if err := c.postAppend(ctx, sheet, values); err != nil {
			return err
		}
		return nil
	}

	if scriptErr != nil {
		return scriptErr
	}
	return fmt.Errorf("%w: no write path configured", ErrUnavailable)
}

// postScript posts {action, sheet, row} to the web-app endpoint.
func (c *HTTPClient) postScript(ctx context.Context, action, sheet string, values []any) error {
	body, err := json.Marshal(map[string]any{
		"action": action,
		"sheet":  sheet,
		"row":    values,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal script request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ScriptURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build script request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return classifyStatus(resp.StatusCode)
}

// postAppend POSTs to the values API append endpoint with the bearer
// token.
func (c *HTTPClient) postAppend(ctx context.Context, sheet string, values []any) error {
	body, err := json.Marshal(map[string]any{"values": [][]any{values}})
	if err != nil {
		return fmt.Errorf("failed to marshal append request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW",
		c.cfg.BaseURL, c.cfg.SpreadsheetID, url.PathEscape(sheet))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build append request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return classifyStatus(resp.StatusCode)
}

// Entries bulk-reads all configured entry sheets. Sheets that cannot be
// read are skipped, matching the best-effort read contract.
func (c *HTTPClient) Entries(ctx context.Context) ([]EntryRow, error) {
	var out []EntryRow
	for _, sheet := range c.router.EntrySheets {
		rows, err := c.readRange(ctx, sheet+"!A:H")
		if err != nil {
			c.logger.Printf("skipping unreadable sheet %q: %v", sheet, err)
			continue
		}
		for i, r := range rows {
			if i == 0 {
				continue // header
			}
			out = append(out, EntryRow{
				Date:         cell(r, 0),
				Time:         cell(r, 1),
				Kind:         cell(r, 2),
				PersonName:   cell(r, 3),
				EnrollmentNo: cell(r, 4),
				Course:       cell(r, 5),
				Branch:       cell(r, 6),
				Semester:     cell(r, 7),
			})
		}
	}
	return out, nil
}

// People bulk-reads the People sheet.
func (c *HTTPClient) People(ctx context.Context) ([]PersonRow, error) {
	rows, err := c.readRange(ctx, c.router.PeopleSheet+"!A:J")
	if err != nil {
		return nil, fmt.Errorf("failed to read people sheet: %w", err)
	}
	var out []PersonRow
	for i, r := range rows {
		if i == 0 {
			continue
		}
		out = append(out, PersonRow{
			ID:           cell(r, 0),
			Name:         cell(r, 1),
			EnrollmentNo: cell(r, 2),
			Email:        cell(r, 3),
			Phone:        cell(r, 4),
			Course:       cell(r, 5),
			Branch:       cell(r, 6),
			Semester:     cell(r, 7),
			CreatedDate:  cell(r, 8),
			CreatedTime:  cell(r, 9),
		})
	}
	return out, nil
}

// readRange GETs a values range with the read API key.
func (c *HTTPClient) readRange(ctx context.Context, valueRange string) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s?key=%s",
		c.cfg.BaseURL, c.cfg.SpreadsheetID, url.PathEscape(valueRange), url.QueryEscape(c.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build read request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var payload struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode values response: %w", err)
	}
	return payload.Values, nil
}

// classifyStatus maps an HTTP status to the adapter error taxonomy.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrAuth, status)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, status)
	default:
		return fmt.Errorf("remote backend returned HTTP %d", status)
	}
}

// cell returns the i-th cell of a row, or "" when the row is short.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
