package license

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// Record is the authority's answer for a license key
type Record struct {
	ClientName  string
	Status      Status
	ActivatedOn time.Time
	ExpiresOn   time.Time
}

// Authority is the external validation authority consulted on activation
// and on launch-time revalidation. Lookup returns ErrKeyNotFound for an
// unknown key, a typed *ActivationError for a device mismatch, and wraps
// transport failures in ErrAuthorityUnavailable.
type Authority interface {
	Lookup(ctx context.Context, licenseKey, deviceFingerprint string) (*Record, error)
}

// SheetsAuthority validates licenses against a managed Google Sheet: one
// row per key with client name, bound fingerprint, activation and expiry
// dates, and status. On first activation the empty fingerprint cell is
// claimed for the requesting device.
type SheetsAuthority struct {
	service   *sheets.Service
	sheetID   string
	sheetName string
	logger    *slog.Logger
}

const (
	authorityDateLayout = "2006-01-02"
	// Columns: A key, B client name, C fingerprint, D activated, E expires, F status
	authorityRange = "A2:F"
)

// NewSheetsAuthority creates an authority backed by the given sheet,
// authenticating with service-account credentials JSON.
func NewSheetsAuthority(ctx context.Context, sheetID, sheetName string, credentialsJSON []byte, logger *slog.Logger) (*SheetsAuthority, error) {
	if sheetID == "" {
		return nil, fmt.Errorf("sheets authority requires a sheet id")
	}
	if logger == nil {
		logger = slog.Default()
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsAuthority{
		service:   service,
		sheetID:   sheetID,
		sheetName: sheetName,
		logger:    logger.With(slog.String("component", "sheets_authority")),
	}, nil
}

// Lookup finds the row for licenseKey and checks the device binding
func (a *SheetsAuthority) Lookup(ctx context.Context, licenseKey, deviceFingerprint string) (*Record, error) {
	readRange := fmt.Sprintf("%s!%s", a.sheetName, authorityRange)
	resp, err := a.service.Spreadsheets.Values.Get(a.sheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	normalized := NormalizeKey(licenseKey)
	for rowIdx, row := range resp.Values {
		if len(row) < 6 {
			continue
		}
		if NormalizeKey(cell(row, 0)) != normalized {
			continue
		}

		boundFingerprint := strings.TrimSpace(cell(row, 2))
		if boundFingerprint != "" && boundFingerprint != deviceFingerprint {
			a.logger.WarnContext(ctx, "license bound to a different device",
				slog.String("license_key_masked", MaskKey(licenseKey)),
			)
			return nil, NewActivationError(CodeDeviceMismatch, "this license is registered to a different device")
		}

		record, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("authority row for key is malformed: %w", err)
		}

		// First activation claims the row for this device
		if boundFingerprint == "" && record.Status == StatusActive {
			if err := a.claimRow(ctx, rowIdx, deviceFingerprint); err != nil {
				return nil, fmt.Errorf("%w: failed to bind device: %v", ErrAuthorityUnavailable, err)
			}
		}
		return record, nil
	}

	return nil, ErrKeyNotFound
}

// claimRow writes the device fingerprint and activation date into the
// matched row. rowIdx is zero-based within the data range starting at row 2.
func (a *SheetsAuthority) claimRow(ctx context.Context, rowIdx int, deviceFingerprint string) error {
	writeRange := fmt.Sprintf("%s!C%d:D%d", a.sheetName, rowIdx+2, rowIdx+2)
	values := &sheets.ValueRange{
		Values: [][]interface{}{{deviceFingerprint, time.Now().Format(authorityDateLayout)}},
	}
	_, err := a.service.Spreadsheets.Values.Update(a.sheetID, writeRange, values).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "license row claimed for device")
	return nil
}

func parseRecord(row []interface{}) (*Record, error) {
	status := Status(strings.ToLower(strings.TrimSpace(cell(row, 5))))
	switch status {
	case StatusActive, StatusExpired, StatusRevoked:
	default:
		return nil, fmt.Errorf("unknown status %q", cell(row, 5))
	}

	expiresOn, err := time.Parse(authorityDateLayout, strings.TrimSpace(cell(row, 4)))
	if err != nil {
		return nil, fmt.Errorf("invalid expiry date: %w", err)
	}

	record := &Record{
		ClientName: strings.TrimSpace(cell(row, 1)),
		Status:     status,
		ExpiresOn:  expiresOn.Add(24*time.Hour - time.Nanosecond), // expires end of day
	}
	if activated := strings.TrimSpace(cell(row, 3)); activated != "" {
		if t, err := time.Parse(authorityDateLayout, activated); err == nil {
			record.ActivatedOn = t
		}
	}
	return record, nil
}

func cell(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	s, _ := row[idx].(string)
	return s
}
