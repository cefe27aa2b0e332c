package tools

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-concierge/internal/availability"
	"github.com/wolfman30/clinic-concierge/internal/bookings"
	"github.com/wolfman30/clinic-concierge/internal/calendar"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/manychat"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type fakeCalendar struct {
	created   []calendar.Event
	deleted   []string
	busy      [][]availability.Interval
	busyFrom  time.Time
	busyTo    time.Time
	createErr error
	deleteErr error
	busyErr   error
}

func (f *fakeCalendar) CreateEvent(_ context.Context, ev calendar.Event) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, ev)
	return "evt-123", nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCalendar) BusyIntervals(_ context.Context, _ []string, from, to time.Time) ([][]availability.Interval, error) {
	f.busyFrom, f.busyTo = from, to
	return f.busy, f.busyErr
}

type fieldWrite struct {
	provider clinic.ProviderKey
	field    string
	value    any
}

type fakeMessenger struct {
	fields  []fieldWrite
	flows   []string
	failSet bool
}

func (f *fakeMessenger) SetField(_ context.Context, p clinic.Profile, _ string, fieldID string, value any) error {
	if f.failSet {
		return errors.New("manychat down")
	}
	f.fields = append(f.fields, fieldWrite{provider: p.Key, field: fieldID, value: value})
	return nil
}

func (f *fakeMessenger) TriggerFlow(_ context.Context, _ clinic.Profile, _ string, flowNS string) error {
	f.flows = append(f.flows, flowNS)
	return nil
}

type fakeRecorder struct {
	recorded []bookings.Booking
	err      error
}

func (f *fakeRecorder) Record(_ context.Context, b bookings.Booking) (*bookings.Booking, error) {
	f.recorded = append(f.recorded, b)
	return &b, f.err
}

func testProfiles() clinic.Profiles {
	return clinic.NewProfiles(&config.Config{
		Marilia: config.ProviderFields{APIKey: "k1", EventIDField: "ev1", ConfirmationField: "cf1", AssignmentField: "as1", ProcedureImageField: "img1"},
		Marina:  config.ProviderFields{APIKey: "k2", EventIDField: "ev2", ConfirmationField: "cf2", AssignmentField: "as2", ProcedureImageField: "img2"},
	})
}

func newTestDispatcher(t *testing.T, cal *fakeCalendar, msg *fakeMessenger, rec BookingRecorder) *Dispatcher {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return NewDispatcher(Config{
		Calendar:      cal,
		Messenger:     msg,
		Bookings:      rec,
		Profiles:      testProfiles(),
		Flows:         manychat.Flows{Reply: "reply", ProcedureImage: "img-flow", Assignment: "assign-flow"},
		ClinicEmail:   "clinic@example.com",
		ClinicAddress: "Presencialmente no Espaço Zaneti: Av Angélica, 688, São Paulo - SP.",
		Location:      loc,
		Metrics:       metrics.NewConversationMetrics(prometheus.NewRegistry()),
		Logger:        logging.NewWithWriter(io.Discard, "error"),
	})
}

func marina(t *testing.T) clinic.Profile {
	t.Helper()
	p, err := testProfiles().Get(clinic.ProviderMarina)
	require.NoError(t, err)
	return p
}

func TestCreateEvent_EndIsStartPlusOneHour(t *testing.T) {
	cal, msg, rec := &fakeCalendar{}, &fakeMessenger{}, &fakeRecorder{}
	d := newTestDispatcher(t, cal, msg, rec)

	out := d.Dispatch(context.Background(), Call{
		ID:   "call_1",
		Name: FuncCreateEvent,
		Arguments: `{"Name":"Maria Silva","Email":"maria@example.com","Telefone":"11999999999",
			"Horario":"2025-01-15T14:00:00-03:00","Procedimento":"Tirze Slim","ComoNosConheceu":"Instagram",
			"modelo":"Presencial","DraResponsavel":"Marina"}`,
	}, Invocation{UserID: "555", Profile: marina(t)})

	assert.Equal(t, "Evento criado com sucesso. ID do evento: evt-123", out)
	require.Len(t, cal.created, 1)
	ev := cal.created[0]
	assert.Equal(t, time.Hour, ev.End.Sub(ev.Start))
	assert.Equal(t, "Maria Silva", ev.Summary)
	assert.Equal(t, "1", ev.ColorID)
	assert.False(t, ev.Meet)
	assert.Contains(t, ev.Location, "Av Angélica")
	assert.Contains(t, ev.Description, "🆔 CPF: Não informado")
	assert.Equal(t, []string{"clinic@example.com", "maria@example.com"}, ev.Attendees)

	assert.Equal(t, []fieldWrite{
		{provider: clinic.ProviderMarina, field: "ev2", value: "evt-123"},
		{provider: clinic.ProviderMarina, field: "cf2", value: "sim"},
	}, msg.fields)

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "evt-123", rec.recorded[0].EventID)
	assert.Equal(t, "555", rec.recorded[0].SubscriberID)
	assert.Equal(t, "Não informado", rec.recorded[0].Address)
}

func TestCreateEvent_OnlineRequestsMeetAndLocalTime(t *testing.T) {
	cal := &fakeCalendar{}
	d := newTestDispatcher(t, cal, &fakeMessenger{}, nil)

	out := d.Dispatch(context.Background(), Call{
		Name:      FuncCreateEvent,
		Arguments: `{"Name":"Ana Souza","Horario":"2025-01-17T09:30:00","modelo":"On-line","DraResponsavel":"Marília"}`,
	}, Invocation{UserID: "1", Profile: marina(t)})

	require.True(t, strings.HasPrefix(out, "Evento criado com sucesso"), out)
	ev := cal.created[0]
	assert.True(t, ev.Meet)
	assert.Equal(t, "Reunião online no Google Meet", ev.Location)
	assert.Equal(t, "2", ev.ColorID)
	assert.Equal(t, 9, ev.Start.Hour())
	assert.Equal(t, "America/Sao_Paulo", ev.Start.Location().String())
}

func TestCreateEvent_MissingStartTime(t *testing.T) {
	cal := &fakeCalendar{}
	d := newTestDispatcher(t, cal, &fakeMessenger{}, nil)

	out := d.Dispatch(context.Background(), Call{Name: FuncCreateEvent, Arguments: `{"Name":"Ana Souza"}`}, Invocation{Profile: marina(t)})
	assert.Equal(t, "Erro ao criar evento: horário do evento não fornecido", out)
	assert.Empty(t, cal.created)
}

func TestCreateEvent_ManyChatAndLedgerFailuresAreNotFatal(t *testing.T) {
	cal := &fakeCalendar{}
	d := newTestDispatcher(t, cal, &fakeMessenger{failSet: true}, &fakeRecorder{err: errors.New("db down")})

	out := d.Dispatch(context.Background(), Call{
		Name:      FuncCreateEvent,
		Arguments: `{"Name":"Ana Souza","Horario":"2025-01-17T09:30:00Z","modelo":"Presencial"}`,
	}, Invocation{UserID: "1", Profile: marina(t)})
	assert.Equal(t, "Evento criado com sucesso. ID do evento: evt-123", out)
}

func TestCreateEvent_CalendarError(t *testing.T) {
	d := newTestDispatcher(t, &fakeCalendar{createErr: errors.New("quota exceeded")}, &fakeMessenger{}, nil)
	out := d.Dispatch(context.Background(), Call{Name: FuncCreateEvent, Arguments: `{"Horario":"2025-01-17T09:30:00Z"}`}, Invocation{Profile: marina(t)})
	assert.Equal(t, "Erro ao criar evento: quota exceeded", out)
}

func TestDeleteEvent(t *testing.T) {
	cal := &fakeCalendar{}
	d := newTestDispatcher(t, cal, &fakeMessenger{}, nil)

	assert.Equal(t, "Evento deletado com sucesso.",
		d.Dispatch(context.Background(), Call{Name: FuncDeleteEvent, Arguments: `{"EventID":"abc"}`}, Invocation{}))
	assert.Equal(t, []string{"abc"}, cal.deleted)

	out := d.Dispatch(context.Background(), Call{Name: FuncDeleteEvent, Arguments: `{}`}, Invocation{})
	assert.True(t, strings.HasPrefix(out, "Erro ao deletar evento: "), out)
}

func TestAvailability_UsesSessionProviderAndWindow(t *testing.T) {
	cal := &fakeCalendar{}
	d := newTestDispatcher(t, cal, &fakeMessenger{}, nil)
	loc := d.loc
	// Monday 2025-01-06 10:00 local; the search starts 15 days later on Tuesday the 21st.
	d.now = func() time.Time { return time.Date(2025, 1, 6, 10, 0, 0, 0, loc) }

	out := d.Dispatch(context.Background(), Call{Name: FuncAvailability}, Invocation{Profile: marina(t)})

	assert.Equal(t, time.Date(2025, 1, 21, 0, 0, 0, 0, loc), cal.busyFrom)
	assert.Equal(t, time.Date(2025, 3, 23, 0, 0, 0, 0, loc), cal.busyTo)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 16)
	assert.Equal(t, "Horários Livres para Dra Marina Zaneti:", lines[0])
	assert.Equal(t, "- quarta-feira, 22/01/2025: 14:00 - 15:00", lines[1])
}

func TestAvailability_CalendarError(t *testing.T) {
	d := newTestDispatcher(t, &fakeCalendar{busyErr: errors.New("token expired")}, &fakeMessenger{}, nil)
	out := d.Dispatch(context.Background(), Call{Name: FuncAvailability}, Invocation{Profile: marina(t)})
	assert.Equal(t, "Erro ao buscar horários disponíveis: token expired", out)
}

func TestProcedureImage(t *testing.T) {
	msg := &fakeMessenger{}
	d := newTestDispatcher(t, &fakeCalendar{}, msg, nil)

	out := d.Dispatch(context.Background(), Call{Name: FuncProcedureImage, Arguments: `{"procedureName":"full face"}`},
		Invocation{UserID: "42", Profile: marina(t)})
	assert.Equal(t, "Flow e Custom Field atualizados com sucesso.", out)
	assert.Equal(t, []fieldWrite{{provider: clinic.ProviderMarina, field: "img2", value: "full face"}}, msg.fields)
	assert.Equal(t, []string{"img-flow"}, msg.flows)

	out = d.Dispatch(context.Background(), Call{Name: FuncProcedureImage, Arguments: `{}`},
		Invocation{UserID: "42", Profile: marina(t)})
	assert.True(t, strings.HasPrefix(out, "Erro ao obter a imagem do procedimento: "), out)
}

func TestProcedureImage_FieldNotConfigured(t *testing.T) {
	d := newTestDispatcher(t, &fakeCalendar{}, &fakeMessenger{}, nil)
	profile := marina(t)
	profile.ProcedureImageField = ""
	out := d.Dispatch(context.Background(), Call{Name: FuncProcedureImage, Arguments: `{"procedureName":"botox"}`},
		Invocation{UserID: "42", Profile: profile})
	assert.Equal(t, "Erro ao obter a imagem do procedimento: "+ErrFieldNotConfigured.Error(), out)
}

func TestAssignToHuman(t *testing.T) {
	msg := &fakeMessenger{}
	d := newTestDispatcher(t, &fakeCalendar{}, msg, nil)

	out := d.Dispatch(context.Background(), Call{Name: FuncAssignToHuman}, Invocation{UserID: "42", Profile: marina(t)})
	assert.Equal(t, "Flow e Custom Field atualizados com sucesso.", out)
	assert.Equal(t, []fieldWrite{{provider: clinic.ProviderMarina, field: "as2", value: "sim"}}, msg.fields)
	assert.Equal(t, []string{"assign-flow"}, msg.flows)

	out = d.Dispatch(context.Background(), Call{Name: FuncAssignToHuman}, Invocation{Profile: marina(t)})
	assert.Equal(t, "Erro ao atribuir conversa: userID é necessário", out)
}

func TestUnknownFunction(t *testing.T) {
	d := newTestDispatcher(t, &fakeCalendar{}, &fakeMessenger{}, nil)
	assert.Equal(t, "Função doSomething não reconhecida.",
		d.Dispatch(context.Background(), Call{Name: "doSomething"}, Invocation{}))
}

func TestCatalog(t *testing.T) {
	tools := Catalog()
	require.Len(t, tools, 6)
	assert.Equal(t, fileSearchToolType, tools[0].Type)
	names := make([]string, 0, 5)
	for _, tool := range tools[1:] {
		require.NotNil(t, tool.Function)
		names = append(names, tool.Function.Name)
	}
	assert.ElementsMatch(t, []string{FuncCreateEvent, FuncDeleteEvent, FuncAvailability, FuncProcedureImage, FuncAssignToHuman}, names)
}
