package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"invodesk/internal/infrastructure"
	"invodesk/internal/license"
)

// LicenseService provides business logic for license operations
type LicenseService interface {
	Status(ctx context.Context) (*LicenseStatusResponse, error)
	Activate(ctx context.Context, key string) (*LicenseStatusResponse, error)
	Renewal(ctx context.Context) (*license.RenewalInfo, error)
	Reset(ctx context.Context) error
}

// LicenseStatusResponse is the transport-facing view of the license state
type LicenseStatusResponse struct {
	Valid              bool       `json:"valid"`
	RequiresActivation bool       `json:"requires_activation"`
	Offline            bool       `json:"offline"`
	LicenseKeyMasked   string     `json:"license_key_masked,omitempty"`
	ClientName         string     `json:"client_name,omitempty"`
	ExpiresOn          *time.Time `json:"expires_on,omitempty"`
	DaysLeft           int        `json:"days_left,omitempty"`
	Status             string     `json:"status,omitempty"`
	TraceID            string     `json:"trace_id"`
	Timestamp          time.Time  `json:"timestamp"`
}

type licenseService struct {
	manager *license.Manager
	logger  *slog.Logger
}

// NewLicenseService creates the license service
func NewLicenseService(manager *license.Manager, logger *slog.Logger) LicenseService {
	return &licenseService{
		manager: manager,
		logger:  logger.With(slog.String("service", "license")),
	}
}

func (s *licenseService) Status(ctx context.Context) (*LicenseStatusResponse, error) {
	launch := s.manager.CheckOnLaunch(ctx)

	resp := &LicenseStatusResponse{
		Valid:              launch.Valid,
		RequiresActivation: launch.RequiresActivation,
		Offline:            launch.Offline,
		TraceID:            infrastructure.TraceIDFromContext(ctx),
		Timestamp:          time.Now().UTC(),
	}
	fillInfo(resp, launch.Info)
	return resp, nil
}

func (s *licenseService) Activate(ctx context.Context, key string) (*LicenseStatusResponse, error) {
	if err := s.manager.Activate(ctx, key); err != nil {
		return nil, err
	}

	info, err := s.manager.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("license activated but unreadable: %w", err)
	}

	resp := &LicenseStatusResponse{
		Valid:     true,
		TraceID:   infrastructure.TraceIDFromContext(ctx),
		Timestamp: time.Now().UTC(),
	}
	fillInfo(resp, info)
	return resp, nil
}

func (s *licenseService) Renewal(ctx context.Context) (*license.RenewalInfo, error) {
	return s.manager.Renewal(ctx)
}

func (s *licenseService) Reset(ctx context.Context) error {
	return s.manager.Reset(ctx)
}

func fillInfo(resp *LicenseStatusResponse, info *license.Info) {
	if info == nil {
		return
	}
	expires := info.ExpiresOn
	resp.LicenseKeyMasked = license.MaskKey(license.FormatKey(info.LicenseKey))
	resp.ClientName = info.ClientName
	resp.ExpiresOn = &expires
	resp.DaysLeft = info.DaysLeft(time.Now())
	resp.Status = string(info.Status)
}
