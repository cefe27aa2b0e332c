package bootstrap

import (
	"context"
	"fmt"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/wolfman30/clinic-concierge/internal/calendar"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// GoogleClients bundles everything built on the clinic's Google token.
type GoogleClients struct {
	OAuth    *calendar.OAuth
	Calendar *calendar.Google
	// Sheets is nil when GOOGLE_SHEET_ID is unset.
	Sheets *calendar.Sheets
}

// BuildGoogleClients wires Calendar and Sheets on a shared refreshing token
// source. The services are usable before consent; calls fail with
// calendar.ErrNoToken until /google has been completed.
func BuildGoogleClients(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*GoogleClients, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	oauth := calendar.NewOAuth(ctx, calendar.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		TokenFile:    cfg.GoogleTokenFile,
	}, logger)

	calSvc, err := gcal.NewService(ctx, option.WithTokenSource(oauth))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: calendar service: %w", err)
	}
	calendarID := "primary"
	if len(cfg.GoogleCalendarIDs) > 0 {
		calendarID = cfg.GoogleCalendarIDs[0]
	}
	clients := &GoogleClients{
		OAuth:    oauth,
		Calendar: calendar.NewGoogle(calSvc, calendar.GoogleConfig{CalendarID: calendarID, Timezone: cfg.Timezone}, logger),
	}

	if cfg.GoogleSheetID == "" {
		logger.Warn("GOOGLE_SHEET_ID not set; lead and booking rows will not be mirrored")
		return clients, nil
	}
	sheetSvc, err := sheets.NewService(ctx, option.WithTokenSource(oauth))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: sheets service: %w", err)
	}
	clients.Sheets = calendar.NewSheets(sheetSvc, cfg.GoogleSheetID, logger)
	return clients, nil
}
