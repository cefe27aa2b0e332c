package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const runLatencyMetric = "clinic_assistant_run_latency_seconds"

type dashboardDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// BookingStats reports confirmed bookings per day and provider.
type BookingStats interface {
	BookingsByDay(ctx context.Context, start, end time.Time) ([]BookingDayRow, error)
}

// BookingDayRow is one (day, provider) bucket of confirmed bookings.
type BookingDayRow struct {
	Day      time.Time
	Provider string
	Total    int64
	Online   int64
}

// BookingDay is the daily series entry returned by the dashboard.
type BookingDay struct {
	Day      string `json:"day"`
	Bookings int64  `json:"bookings"`
	Online   int64  `json:"online"`
}

type RunLatencySnapshot struct {
	Total   int64              `json:"total"`
	P90Ms   float64            `json:"p90_ms"`
	P95Ms   float64            `json:"p95_ms"`
	Buckets []RunLatencyBucket `json:"buckets"`
}

type RunLatencyBucket struct {
	LeSeconds float64 `json:"le_seconds"`
	Label     string  `json:"label,omitempty"`
	Count     int64   `json:"count"`
}

type Dashboard struct {
	PeriodStart string             `json:"period_start"`
	PeriodEnd   string             `json:"period_end"`
	Bookings    int64              `json:"bookings"`
	Online      int64              `json:"online"`
	InPerson    int64              `json:"in_person"`
	ByProvider  map[string]int64   `json:"by_provider"`
	RunLatency  RunLatencySnapshot `json:"run_latency"`
	Daily       []BookingDay       `json:"daily"`
}

// DashboardRepository aggregates the bookings ledger.
type DashboardRepository struct {
	db dashboardDB
}

func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	if pool == nil {
		panic("clinic: pgx pool required for dashboard")
	}
	return &DashboardRepository{db: pool}
}

func newDashboardRepositoryWithDB(db dashboardDB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

const bookingsByDay = `
	SELECT date_trunc('day', created_at) AS day,
	       provider,
	       COUNT(*) AS total,
	       COUNT(*) FILTER (WHERE replace(lower(modality), '-', '') LIKE '%online%') AS online
	FROM bookings
	WHERE created_at >= $1
	  AND created_at < $2
	GROUP BY day, provider
	ORDER BY day, provider
`

func (r *DashboardRepository) BookingsByDay(ctx context.Context, start, end time.Time) ([]BookingDayRow, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("clinic dashboard: invalid time range")
	}
	rows, err := r.db.Query(ctx, bookingsByDay, start, end)
	if err != nil {
		return nil, fmt.Errorf("clinic dashboard: query bookings: %w", err)
	}
	defer rows.Close()

	var results []BookingDayRow
	for rows.Next() {
		var row BookingDayRow
		if err := rows.Scan(&row.Day, &row.Provider, &row.Total, &row.Online); err != nil {
			return nil, fmt.Errorf("clinic dashboard: scan bookings: %w", err)
		}
		row.Day = row.Day.UTC()
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clinic dashboard: iterate bookings: %w", err)
	}
	return results, nil
}

// DashboardHandler serves booking volume and assistant latency for the
// admin surface. repo may be nil when Postgres is not configured.
type DashboardHandler struct {
	repo     BookingStats
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	now      func() time.Time
}

func NewDashboardHandler(repo BookingStats, gatherer prometheus.Gatherer, logger *logging.Logger) *DashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &DashboardHandler{
		repo:     repo,
		gatherer: gatherer,
		logger:   logger.Component("dashboard"),
		now:      time.Now,
	}
}

// GetDashboard returns booking volume and run latency.
// GET /admin/dashboard
// Query params:
//   - start, end: RFC3339 timestamps (both or neither)
//   - days: integer window (default 7) when start/end omitted
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		http.Error(w, `{"error":"dashboard disabled (db not configured)"}`, http.StatusServiceUnavailable)
		return
	}

	start, end, err := parseDashboardWindow(r, h.now())
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	rows, err := h.repo.BookingsByDay(r.Context(), start, end)
	if err != nil {
		h.logger.Error("failed to query dashboard bookings", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	resp := Dashboard{
		PeriodStart: start.UTC().Format(time.RFC3339),
		PeriodEnd:   end.UTC().Format(time.RFC3339),
		ByProvider:  map[string]int64{},
		RunLatency:  snapshotRunLatency(h.gatherer),
		Daily:       dailySeries(rows, start, end),
	}
	for _, row := range rows {
		resp.Bookings += row.Total
		resp.Online += row.Online
		resp.ByProvider[row.Provider] += row.Total
	}
	resp.InPerson = resp.Bookings - resp.Online

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

var (
	errWindowPair  = errors.New("both start and end must be provided, or neither")
	errWindowStart = errors.New("invalid start time, use RFC3339 format")
	errWindowEnd   = errors.New("invalid end time, use RFC3339 format")
	errWindowOrder = errors.New("end must be after start")
	errWindowDays  = errors.New("invalid days; must be 1-90")
)

// parseDashboardWindow reads start/end, or a trailing window of whole UTC days
// ending tomorrow at midnight.
func parseDashboardWindow(r *http.Request, now time.Time) (start, end time.Time, err error) {
	q := r.URL.Query()
	rawStart, rawEnd := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))

	switch {
	case rawStart == "" && rawEnd == "":
		days := 7
		if raw := strings.TrimSpace(q.Get("days")); raw != "" {
			if days, err = strconv.Atoi(raw); err != nil || days < 1 || days > 90 {
				return start, end, errWindowDays
			}
		}
		end = midnight(now).AddDate(0, 0, 1)
		return end.AddDate(0, 0, -days), end, nil
	case rawStart == "" || rawEnd == "":
		return start, end, errWindowPair
	}

	if start, err = time.Parse(time.RFC3339, rawStart); err != nil {
		return start, end, errWindowStart
	}
	if end, err = time.Parse(time.RFC3339, rawEnd); err != nil {
		return start, end, errWindowEnd
	}
	if !end.After(start) {
		return start, end, errWindowOrder
	}
	return start.UTC(), end.UTC(), nil
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dailySeries folds provider rows into one entry per day, zero-filling gaps.
func dailySeries(rows []BookingDayRow, start, end time.Time) []BookingDay {
	byDay := map[string]BookingDay{}
	for _, row := range rows {
		key := row.Day.UTC().Format(time.DateOnly)
		d := byDay[key]
		d.Bookings += row.Total
		d.Online += row.Online
		byDay[key] = d
	}

	var out []BookingDay
	for day, last := midnight(start), midnight(end); day.Before(last); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		d := byDay[key]
		d.Day = key
		out = append(out, d)
	}
	return out
}

// latencyHistogram is the completed-run histogram merged across label sets.
// cum[i] counts samples at or below uppers[i]; the final upper is +Inf.
type latencyHistogram struct {
	uppers []float64
	cum    []uint64
	total  uint64
}

// snapshotRunLatency summarizes completed assistant runs from the registry.
func snapshotRunLatency(gatherer prometheus.Gatherer) RunLatencySnapshot {
	mfs, err := gatherer.Gather()
	if err != nil {
		return RunLatencySnapshot{}
	}
	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == runLatencyMetric {
			family = mf
			break
		}
	}
	h, ok := mergeCompleted(family)
	if !ok {
		return RunLatencySnapshot{}
	}

	snap := RunLatencySnapshot{
		Total: int64(h.total),
		P90Ms: h.quantile(0.90) * 1000,
		P95Ms: h.quantile(0.95) * 1000,
	}
	var below uint64
	for i, upper := range h.uppers {
		count := int64(h.cum[i] - min(below, h.cum[i]))
		below = h.cum[i]
		if !math.IsInf(upper, 1) {
			snap.Buckets = append(snap.Buckets, RunLatencyBucket{LeSeconds: upper, Count: count})
			continue
		}
		if count > 0 {
			last := 0.0
			if i > 0 {
				last = h.uppers[i-1]
			}
			snap.Buckets = append(snap.Buckets, RunLatencyBucket{LeSeconds: last, Label: ">" + formatSeconds(last), Count: count})
		}
	}
	return snap
}

func mergeCompleted(family *dto.MetricFamily) (latencyHistogram, bool) {
	if family == nil {
		return latencyHistogram{}, false
	}
	byUpper := map[float64]uint64{}
	var total uint64
	for _, metric := range family.GetMetric() {
		if !hasLabel(metric, "status", "completed") || metric.GetHistogram() == nil {
			continue
		}
		hist := metric.GetHistogram()
		total += hist.GetSampleCount()
		for _, b := range hist.GetBucket() {
			byUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if total == 0 {
		return latencyHistogram{}, false
	}
	// The client library leaves +Inf implicit; the sample count stands in.
	byUpper[math.Inf(1)] = total

	h := latencyHistogram{total: total}
	for upper := range byUpper {
		h.uppers = append(h.uppers, upper)
	}
	sort.Float64s(h.uppers)
	for _, upper := range h.uppers {
		h.cum = append(h.cum, byUpper[upper])
	}
	return h, true
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// quantile interpolates linearly inside the bucket holding q. Samples in the
// +Inf bucket resolve to the largest finite bound.
func (h latencyHistogram) quantile(q float64) float64 {
	if h.total == 0 || q <= 0 {
		return 0
	}
	target := math.Min(q, 1) * float64(h.total)
	lower, below := 0.0, 0.0
	for i, upper := range h.uppers {
		cum := float64(h.cum[i])
		if cum < target {
			lower, below = upper, cum
			continue
		}
		if math.IsInf(upper, 1) {
			return lower
		}
		if cum == below {
			return upper
		}
		return lower + (target-below)/(cum-below)*(upper-lower)
	}
	return lower
}

func formatSeconds(seconds float64) string {
	switch {
	case seconds <= 0:
		return "0s"
	case seconds < 1:
		return fmt.Sprintf("%.2fs", seconds)
	case seconds < 10:
		return fmt.Sprintf("%.1fs", seconds)
	default:
		return fmt.Sprintf("%.0fs", seconds)
	}
}
