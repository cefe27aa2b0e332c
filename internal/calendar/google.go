// Package calendar wraps the Google Calendar and Sheets APIs the concierge
// books appointments and records leads with.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/wolfman30/clinic-concierge/internal/availability"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.calendar")

// Event describes an appointment to insert.
type Event struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	ColorID     string
	Attendees   []string
	// Meet requests a Google Meet conference for online appointments.
	Meet bool
}

// GoogleConfig configures the calendar the concierge writes to.
type GoogleConfig struct {
	CalendarID string
	Timezone   string
}

// Google creates and deletes events and reads free/busy data.
type Google struct {
	svc        *gcal.Service
	calendarID string
	timezone   string
	logger     *logging.Logger
}

// NewGoogle wraps an authenticated calendar service.
func NewGoogle(svc *gcal.Service, cfg GoogleConfig, logger *logging.Logger) *Google {
	if svc == nil {
		panic("calendar: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	calendarID := strings.TrimSpace(cfg.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}
	timezone := strings.TrimSpace(cfg.Timezone)
	if timezone == "" {
		timezone = "America/Sao_Paulo"
	}
	return &Google{svc: svc, calendarID: calendarID, timezone: timezone, logger: logger.Component("calendar")}
}

// CreateEvent inserts the event, notifies attendees and returns its id.
func (g *Google) CreateEvent(ctx context.Context, ev Event) (string, error) {
	ctx, span := tracer.Start(ctx, "calendar.events.insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.calendar_id", g.calendarID),
		attribute.Bool("clinic.meet", ev.Meet),
	)

	if ev.Start.IsZero() || !ev.End.After(ev.Start) {
		return "", errors.New("calendar: event end must be after start")
	}
	event := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		ColorId:     ev.ColorID,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: g.timezone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: g.timezone},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	for _, email := range ev.Attendees {
		if email = strings.TrimSpace(email); email != "" {
			event.Attendees = append(event.Attendees, &gcal.EventAttendee{Email: email})
		}
	}
	if ev.Meet {
		event.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             "meet_" + uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	created, err := g.svc.Events.Insert(g.calendarID, event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	span.SetAttributes(attribute.String("clinic.event_id", created.Id))
	g.logger.Info("calendar event created", "event_id", created.Id, "start", ev.Start.Format(time.RFC3339))
	return created.Id, nil
}

// DeleteEvent removes the event and notifies attendees.
func (g *Google) DeleteEvent(ctx context.Context, eventID string) error {
	ctx, span := tracer.Start(ctx, "calendar.events.delete")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.event_id", eventID))

	if strings.TrimSpace(eventID) == "" {
		return errors.New("calendar: event id required")
	}
	if err := g.svc.Events.Delete(g.calendarID, eventID).SendUpdates("all").Context(ctx).Do(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("calendar: delete event: %w", err)
	}
	g.logger.Info("calendar event deleted", "event_id", eventID)
	return nil
}

// BusyIntervals queries free/busy for every calendar in [from, to) and
// returns one busy list per calendar in the order given. A calendar the API
// reports errors for contributes no busy time; the call fails only when the
// query itself fails.
func (g *Google) BusyIntervals(ctx context.Context, calendarIDs []string, from, to time.Time) ([][]availability.Interval, error) {
	ctx, span := tracer.Start(ctx, "calendar.freebusy.query")
	defer span.End()
	span.SetAttributes(attribute.Int("clinic.calendars", len(calendarIDs)))

	if len(calendarIDs) == 0 {
		return nil, errors.New("calendar: at least one calendar id required")
	}
	req := &gcal.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: g.timezone,
	}
	for _, id := range calendarIDs {
		req.Items = append(req.Items, &gcal.FreeBusyRequestItem{Id: id})
	}
	resp, err := g.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("calendar: query free/busy: %w", err)
	}

	out := make([][]availability.Interval, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		cal, ok := resp.Calendars[id]
		if !ok {
			out = append(out, nil)
			continue
		}
		for _, e := range cal.Errors {
			g.logger.Warn("free/busy calendar error", "calendar_id", id, "reason", e.Reason)
		}
		var busy []availability.Interval
		for _, period := range cal.Busy {
			start, errStart := time.Parse(time.RFC3339, period.Start)
			end, errEnd := time.Parse(time.RFC3339, period.End)
			if errStart != nil || errEnd != nil {
				g.logger.Warn("skipping malformed busy period", "calendar_id", id, "start", period.Start, "end", period.End)
				continue
			}
			busy = append(busy, availability.Interval{Start: start, End: end})
		}
		out = append(out, busy)
	}
	return out, nil
}
