package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/sheets/v4"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const (
	leadsRange    = "entrada!A2"
	bookingsRange = "agendamentos!A2"
)

// Sheets appends rows to the clinic's tracking spreadsheet.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	logger        *logging.Logger
}

// NewSheets wraps an authenticated Sheets service.
func NewSheets(svc *sheets.Service, spreadsheetID string, logger *logging.Logger) *Sheets {
	if svc == nil {
		panic("calendar: sheets service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sheets{svc: svc, spreadsheetID: strings.TrimSpace(spreadsheetID), logger: logger.Component("sheets")}
}

// AppendLead records a first-contact subscriber: id, name, WhatsApp phone.
func (s *Sheets) AppendLead(ctx context.Context, subscriberID, name, phone string) error {
	return s.append(ctx, leadsRange, []any{subscriberID, name, phone})
}

// AppendBooking records a booked appointment row.
func (s *Sheets) AppendBooking(ctx context.Context, row []any) error {
	return s.append(ctx, bookingsRange, row)
}

func (s *Sheets) append(ctx context.Context, rng string, row []any) error {
	ctx, span := tracer.Start(ctx, "sheets.values.append")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.sheet_range", rng))

	if s.spreadsheetID == "" {
		return errors.New("calendar: spreadsheet id not configured")
	}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("calendar: append row to %s: %w", rng, err)
	}
	s.logger.Debug("sheet row appended", "range", rng)
	return nil
}
