package bookings

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var bookingsTracer = otel.Tracer("clinic.internal.bookings")

// Store persists bookings.
type Store interface {
	Insert(ctx context.Context, b *Booking) error
}

// SheetWriter mirrors bookings to the clinic spreadsheet.
type SheetWriter interface {
	AppendBooking(ctx context.Context, row []any) error
}

// Service records bookings in Postgres and mirrors them to the spreadsheet.
// Either sink may be nil when it is not configured.
type Service struct {
	store  Store
	sheets SheetWriter
	logger *logging.Logger
}

// NewService constructs a bookings service.
func NewService(store Store, sheets SheetWriter, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, sheets: sheets, logger: logger.Component("bookings")}
}

// Record validates and stores the booking. A spreadsheet failure is logged
// and does not fail the call once the database write succeeded.
func (s *Service) Record(ctx context.Context, b Booking) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.record")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.event_id", b.EventID),
		attribute.String("clinic.provider", b.Provider),
	)

	if err := b.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	var errs []error
	if s.store != nil {
		if err := s.store.Insert(ctx, &b); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	if s.sheets != nil {
		if err := s.sheets.AppendBooking(ctx, sheetRow(b)); err != nil {
			span.RecordError(err)
			s.logger.Error("failed to mirror booking to sheet", "event_id", b.EventID, "error", err)
			errs = append(errs, err)
		}
	}
	if s.store == nil && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	s.logger.Info("booking recorded", "event_id", b.EventID, "user_id", b.SubscriberID, "provider", b.Provider)
	return &b, nil
}

func sheetRow(b Booking) []any {
	payment := "Não"
	if b.PaymentConfirmed {
		payment = "Sim"
	}
	return []any{b.PatientName, b.BirthDate, b.CPF, b.Address, b.Email, payment}
}
