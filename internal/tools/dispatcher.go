package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/internal/availability"
	"github.com/wolfman30/clinic-concierge/internal/bookings"
	"github.com/wolfman30/clinic-concierge/internal/calendar"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/manychat"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.tools")

var (
	ErrMissingStartTime   = errors.New("horário do evento não fornecido")
	ErrMissingEventID     = errors.New("event ID não informado")
	ErrMissingUserID      = errors.New("userID é necessário")
	ErrMissingProcedure   = errors.New("o nome do procedimento (procedureName) é obrigatório")
	ErrFieldNotConfigured = errors.New("campo do ManyChat não configurado para a médica")
	errInvalidStartTime   = errors.New("horário do evento inválido")
	errInvalidArguments   = errors.New("argumentos inválidos")
)

const (
	// AppointmentDuration is the fixed length of every booked appointment.
	AppointmentDuration = 60 * time.Minute
	// availabilityLeadDays is how far ahead of today the availability search starts.
	availabilityLeadDays = 15
	// availabilitySpanDays bounds the free/busy query after the lead.
	availabilitySpanDays = 60

	notInformed     = "Não informado"
	confirmedValue  = "sim"
	onlineLocation  = "Reunião online no Google Meet"
	flowSuccessText = "Flow e Custom Field atualizados com sucesso."
)

// Call is one function invocation requested by the assistant.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// Invocation carries the conversation the call belongs to.
type Invocation struct {
	UserID  string
	Profile clinic.Profile
}

// Calendar is the scheduling surface used by the appointment tools.
type Calendar interface {
	CreateEvent(ctx context.Context, ev calendar.Event) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
	BusyIntervals(ctx context.Context, calendarIDs []string, from, to time.Time) ([][]availability.Interval, error)
}

// Messenger writes subscriber fields and triggers flows on ManyChat.
type Messenger interface {
	SetField(ctx context.Context, profile clinic.Profile, subscriberID, fieldID string, value any) error
	TriggerFlow(ctx context.Context, profile clinic.Profile, subscriberID, flowNS string) error
}

// BookingRecorder persists confirmed appointments.
type BookingRecorder interface {
	Record(ctx context.Context, b bookings.Booking) (*bookings.Booking, error)
}

// Config wires the dispatcher. Bookings and Metrics are optional.
type Config struct {
	Calendar      Calendar
	Messenger     Messenger
	Bookings      BookingRecorder
	Profiles      clinic.Profiles
	Flows         manychat.Flows
	CalendarIDs   []string
	ClinicEmail   string
	ClinicAddress string
	Location      *time.Location
	Metrics       *metrics.ConversationMetrics
	Logger        *logging.Logger
}

// Dispatcher routes assistant tool calls to clinic operations. Every result
// is a string; failures are reported in Portuguese so the run can resume.
type Dispatcher struct {
	cal           Calendar
	messenger     Messenger
	bookings      BookingRecorder
	profiles      clinic.Profiles
	flows         manychat.Flows
	calendarIDs   []string
	clinicEmail   string
	clinicAddress string
	loc           *time.Location
	metrics       *metrics.ConversationMetrics
	logger        *logging.Logger
	now           func() time.Time
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Calendar == nil {
		panic("tools: calendar cannot be nil")
	}
	if cfg.Messenger == nil {
		panic("tools: messenger cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.CalendarIDs) == 0 {
		cfg.CalendarIDs = []string{"primary"}
	}
	return &Dispatcher{
		cal:           cfg.Calendar,
		messenger:     cfg.Messenger,
		bookings:      cfg.Bookings,
		profiles:      cfg.Profiles,
		flows:         cfg.Flows,
		calendarIDs:   cfg.CalendarIDs,
		clinicEmail:   cfg.ClinicEmail,
		clinicAddress: cfg.ClinicAddress,
		loc:           cfg.Location,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.Component("tools"),
		now:           time.Now,
	}
}

// Dispatch executes call and returns its output for the assistant.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call, inv Invocation) string {
	ctx, span := tracer.Start(ctx, "tools.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.tool", call.Name),
		attribute.String("clinic.tool_call_id", call.ID),
		attribute.String("clinic.provider", inv.Profile.Key.String()),
	)

	var (
		out    string
		err    error
		prefix string
	)
	switch call.Name {
	case FuncCreateEvent:
		prefix = "Erro ao criar evento"
		out, err = d.createEvent(ctx, call.Arguments, inv)
	case FuncAvailability:
		prefix = "Erro ao buscar horários disponíveis"
		out, err = d.availability(ctx, inv)
	case FuncDeleteEvent:
		prefix = "Erro ao deletar evento"
		out, err = d.deleteEvent(ctx, call.Arguments)
	case FuncProcedureImage:
		prefix = "Erro ao obter a imagem do procedimento"
		out, err = d.procedureImage(ctx, call.Arguments, inv)
	case FuncAssignToHuman:
		prefix = "Erro ao atribuir conversa"
		out, err = d.assign(ctx, inv)
	default:
		d.logger.Warn("unknown tool requested", "tool", call.Name, "user_id", inv.UserID)
		d.metrics.ObserveToolCall(call.Name, false)
		return fmt.Sprintf("Função %s não reconhecida.", call.Name)
	}

	d.metrics.ObserveToolCall(call.Name, err == nil)
	if err != nil {
		span.RecordError(err)
		d.logger.Error("tool call failed", "tool", call.Name, "user_id", inv.UserID, "error", err)
		return fmt.Sprintf("%s: %s", prefix, err.Error())
	}
	d.logger.Info("tool call completed", "tool", call.Name, "user_id", inv.UserID)
	return out
}

type eventArgs struct {
	Name                string `json:"Name"`
	CPF                 string `json:"CPF"`
	Phone               string `json:"Telefone"`
	BirthDate           string `json:"Nascimento"`
	Email               string `json:"Email"`
	StartsAt            string `json:"Horario"`
	Procedure           string `json:"Procedimento"`
	Referral            string `json:"ComoNosConheceu"`
	Modality            string `json:"modelo"`
	Address             string `json:"endereco"`
	Provider            string `json:"DraResponsavel"`
	PaymentConfirmed    bool   `json:"PagamentoConfirmado"`
	SubscriberIDFromArg string `json:"ManyChatID"`
}

func decodeArgs(raw string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArguments, err)
	}
	return nil
}

func orDefault(v string) string {
	if strings.TrimSpace(v) == "" {
		return notInformed
	}
	return v
}

func (d *Dispatcher) createEvent(ctx context.Context, raw string, inv Invocation) (string, error) {
	var args eventArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.StartsAt) == "" {
		return "", ErrMissingStartTime
	}
	start, err := parseStart(args.StartsAt, d.loc)
	if err != nil {
		return "", err
	}
	end := start.Add(AppointmentDuration)

	profile := inv.Profile
	if p, ok := d.profiles.MatchName(args.Provider); ok {
		profile = p
	}
	subscriberID := inv.UserID
	if subscriberID == "" {
		subscriberID = args.SubscriberIDFromArg
	}

	cpf, birth, address := orDefault(args.CPF), orDefault(args.BirthDate), orDefault(args.Address)
	ev := calendar.Event{
		Summary: args.Name,
		Description: strings.Join([]string{
			"📅 Consulta agendada no Espaço Zaneti.",
			"👤 Nome: " + args.Name,
			"🆔 CPF: " + cpf,
			"📞 Telefone: " + args.Phone,
			"🎂 Nascimento: " + birth,
			"💉 Procedimento: " + args.Procedure,
			"🧐 Como nos conheceu: " + args.Referral,
		}, "\n"),
		Start:   start,
		End:     end,
		ColorID: profile.ColorID,
	}
	for _, email := range []string{d.clinicEmail, args.Email} {
		if strings.TrimSpace(email) != "" {
			ev.Attendees = append(ev.Attendees, email)
		}
	}
	switch modality(args.Modality) {
	case modalityInPerson:
		ev.Location = d.clinicAddress
	case modalityOnline:
		ev.Location = onlineLocation
		ev.Meet = true
	}

	eventID, err := d.cal.CreateEvent(ctx, ev)
	if err != nil {
		return "", err
	}

	if subscriberID == "" {
		d.logger.Warn("event created without subscriber id; skipping ManyChat fields", "event_id", eventID)
	} else {
		d.writeField(ctx, profile, subscriberID, profile.EventIDField, eventID, "event_id")
		d.writeField(ctx, profile, subscriberID, profile.ConfirmationField, confirmedValue, "confirmation")
	}

	if d.bookings != nil {
		_, err := d.bookings.Record(ctx, bookings.Booking{
			EventID:          eventID,
			SubscriberID:     subscriberID,
			Provider:         profile.DisplayName,
			PatientName:      args.Name,
			Email:            args.Email,
			Phone:            args.Phone,
			CPF:              cpf,
			BirthDate:        birth,
			Address:          address,
			Procedure:        args.Procedure,
			Referral:         args.Referral,
			Modality:         args.Modality,
			PaymentConfirmed: args.PaymentConfirmed,
			StartsAt:         start,
		})
		if err != nil {
			d.logger.Error("failed to record booking", "event_id", eventID, "error", err)
		}
	}

	return fmt.Sprintf("Evento criado com sucesso. ID do evento: %s", eventID), nil
}

func (d *Dispatcher) writeField(ctx context.Context, profile clinic.Profile, subscriberID, fieldID string, value any, name string) {
	if fieldID == "" {
		d.logger.Warn("ManyChat field not configured", "field", name, "provider", profile.Key.String())
		return
	}
	if err := d.messenger.SetField(ctx, profile, subscriberID, fieldID, value); err != nil {
		d.logger.Error("failed to update ManyChat field", "field", name, "user_id", subscriberID, "error", err)
	}
}

type modalityKind int

const (
	modalityUnknown modalityKind = iota
	modalityInPerson
	modalityOnline
)

func modality(v string) modalityKind {
	folded := strings.ReplaceAll(clinic.Fold(v), "-", "")
	switch {
	case strings.Contains(folded, "presencial"):
		return modalityInPerson
	case strings.Contains(folded, "online"):
		return modalityOnline
	default:
		return modalityUnknown
	}
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseStart accepts RFC 3339 timestamps and offset-less local times, which
// are read in loc.
func parseStart(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errInvalidStartTime, v)
}

func (d *Dispatcher) deleteEvent(ctx context.Context, raw string) (string, error) {
	var args struct {
		EventID string `json:"EventID"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.EventID) == "" {
		return "", ErrMissingEventID
	}
	if err := d.cal.DeleteEvent(ctx, args.EventID); err != nil {
		return "", err
	}
	return "Evento deletado com sucesso.", nil
}

func (d *Dispatcher) availability(ctx context.Context, inv Invocation) (string, error) {
	now := d.now().In(d.loc)
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, d.loc)
	from := today.AddDate(0, 0, availabilityLeadDays)
	to := from.AddDate(0, 0, availabilitySpanDays+1)

	busy, err := d.cal.BusyIntervals(ctx, d.calendarIDs, from, to)
	if err != nil {
		return "", err
	}
	slots := availability.ComputeSlots(inv.Profile.DisplayName, busy, from, availability.DefaultQualifyingDays)
	return availability.Format(inv.Profile.DisplayName, slots), nil
}

func (d *Dispatcher) procedureImage(ctx context.Context, raw string, inv Invocation) (string, error) {
	var args struct {
		ProcedureName string `json:"procedureName"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if inv.UserID == "" {
		return "", ErrMissingUserID
	}
	if strings.TrimSpace(args.ProcedureName) == "" {
		return "", ErrMissingProcedure
	}
	return d.setFieldAndFlow(ctx, inv, inv.Profile.ProcedureImageField, args.ProcedureName, d.flows.ProcedureImage)
}

func (d *Dispatcher) assign(ctx context.Context, inv Invocation) (string, error) {
	if inv.UserID == "" {
		return "", ErrMissingUserID
	}
	return d.setFieldAndFlow(ctx, inv, inv.Profile.AssignmentField, confirmedValue, d.flows.Assignment)
}

func (d *Dispatcher) setFieldAndFlow(ctx context.Context, inv Invocation, fieldID string, value any, flowNS string) (string, error) {
	if fieldID == "" {
		return "", ErrFieldNotConfigured
	}
	if err := d.messenger.SetField(ctx, inv.Profile, inv.UserID, fieldID, value); err != nil {
		return "", err
	}
	if err := d.messenger.TriggerFlow(ctx, inv.Profile, inv.UserID, flowNS); err != nil {
		return "", err
	}
	return flowSuccessText, nil
}
