package colormeter

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ztkent/color-meter/internal/notify"
	"github.com/ztkent/color-meter/internal/tools"
	"github.com/ztkent/color-meter/tcs34725"
)

//go:embed html/*
var templateFiles embed.FS

// CrossingPublisher forwards threshold crossings, e.g. to MQTT.
type CrossingPublisher interface {
	PublishCrossing(notify.Crossing) error
}

type CMeter struct {
	*tcs34725.TCS34725
	ReadingsChan chan Reading
	History      *History
	EventsDB     *sql.DB
	Publisher    CrossingPublisher
	Location     *time.Location
	Pid          int

	mu            sync.Mutex
	cancel        context.CancelFunc
	jobID         string
	notifications <-chan tcs34725.Notification
}

type Reading struct {
	tcs34725.Sample
	Lux                   float64   `json:"lux"`
	ColorTemperature      float64   `json:"colorTemperature"`
	ColorTemperatureValid bool      `json:"colorTemperatureValid"`
	Gain                  string    `json:"gain"`
	IntegrationTime       string    `json:"integrationTime"`
	JobID                 string    `json:"jobID"`
	Time                  time.Time `json:"time"`
}

type Event struct {
	EventID    string    `json:"eventID"`
	Low        uint16    `json:"low"`
	High       uint16    `json:"high"`
	ClearError string    `json:"clearError,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

const (
	MAX_JOB_DURATION = 8 * time.Hour
	RECORD_INTERVAL  = 30 * time.Second
	EVENTS_SPAN      = 24 * time.Hour
)

// New returns a meter for device. EventsDB and Publisher may be nil.
func New(device *tcs34725.TCS34725, eventsDB *sql.DB, publisher CrossingPublisher, pid int) *CMeter {
	return &CMeter{
		TCS34725:     device,
		ReadingsChan: make(chan Reading),
		History:      NewHistory(HISTORY_SIZE),
		EventsDB:     eventsDB,
		Publisher:    publisher,
		Location:     time.Local,
		Pid:          pid,
	}
}

func (m *CMeter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobID != ""
}

// Start the sensor, and collect data in a loop
func (m *CMeter) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TCS34725 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		jobID := uuid.New().String()
		m.mu.Lock()
		if m.jobID != "" {
			m.mu.Unlock()
			ServeResponse(w, r, "The sensor is already started", http.StatusBadRequest)
			return
		}
		// Create a new context with a timeout to manage the sensor lifecycle
		ctx, cancel := context.WithTimeout(context.Background(), MAX_JOB_DURATION)
		m.cancel = cancel
		m.jobID = jobID
		m.mu.Unlock()

		if !m.Enabled() {
			if err := m.Enable(); err != nil {
				m.finishJob(jobID)
				ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
				return
			}
		}

		logrus.WithField("jobID", jobID).Info("Color reading started")
		go m.runJob(ctx, jobID)
		ServeResponse(w, r, "Color Reading Started", http.StatusOK)
	}
}

func (m *CMeter) runJob(ctx context.Context, jobID string) {
	defer m.finishJob(jobID)
	ticker := time.NewTicker(RECORD_INTERVAL)
	defer ticker.Stop()
	for {
		reading, err := m.TakeReading(jobID)
		switch {
		case err != nil:
			logrus.WithError(err).WithField("jobID", jobID).Error("The sensor failed to read a sample")
		case reading.Saturated(m.IntegrationTime()):
			logrus.WithField("jobID", jobID).Info("Sample saturated, attempting to set new optimal sensor gain")
			if err := m.SetOptimalGain(); err != nil {
				logrus.WithError(err).Warn("The sensor failed to determine new optimal gain")
			}
		default:
			select {
			case m.ReadingsChan <- reading:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			logrus.WithField("jobID", jobID).Info("Job cancelled, stopping reading")
			return
		case <-ticker.C:
		}
	}
}

// finishJob cancels jobID if it is still the current job.
func (m *CMeter) finishJob(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobID != jobID {
		return
	}
	m.cancel()
	m.cancel = nil
	m.jobID = ""
}

// TakeReading waits one integration cycle and reads a sample.
func (m *CMeter) TakeReading(jobID string) (Reading, error) {
	timing := m.IntegrationTime()
	time.Sleep(timing.Duration())
	s, err := m.ReadSample()
	if err != nil {
		return Reading{}, err
	}
	cct, ok := tcs34725.CalculateColorTemperature(s)
	return Reading{
		Sample:                s,
		Lux:                   tcs34725.CalculateLux(s),
		ColorTemperature:      cct,
		ColorTemperatureValid: ok,
		Gain:                  m.Gain().String(),
		IntegrationTime:       timing.String(),
		JobID:                 jobID,
		Time:                  time.Now().UTC(),
	}, nil
}

// Stop the reading job. The sensor is put to sleep unless thresholds are armed.
func (m *CMeter) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TCS34725 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		jobID := m.jobID
		m.mu.Unlock()
		if jobID == "" {
			ServeResponse(w, r, "The sensor is already stopped", http.StatusBadRequest)
			return
		}
		m.finishJob(jobID)
		if _, _, armed := m.Thresholds(); !armed {
			if err := m.Disable(); err != nil {
				ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		ServeResponse(w, r, "Color Reading Stopped", http.StatusOK)
	}
}

// Serve the most recent reading from the job
func (m *CMeter) CurrentConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reading, ok := m.History.Latest()
		if !ok {
			ServeResponse(w, r, "No readings yet", http.StatusNotFound)
			return
		}
		serveJSON(w, reading)
	}
}

// Read the sensor right now, outside of any job
func (m *CMeter) Sample() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TCS34725 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		reading, err := m.TakeReading("")
		if err != nil {
			logrus.WithError(err).Error("One-shot sample failed")
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		serveJSON(w, reading)
	}
}

// Turn the LED on or off, based on the "state" URL param
func (m *CMeter) LED(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TCS34725 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		if err := m.SetLED(on); err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		state := "off"
		if on {
			state = "on"
		}
		ServeResponse(w, r, "LED "+state, http.StatusOK)
	}
}

// Arm the threshold interrupt with the "low" and "high" form values
func (m *CMeter) ArmThresholds() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TCS34725 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		low, err := parseThreshold(r, "low")
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		high, err := parseThreshold(r, "high")
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		ch, err := m.EnableInterrupt(low, high)
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		if ch != m.notifications {
			m.notifications = ch
			go m.RecordCrossings(ch)
		}
		ServeResponse(w, r, fmt.Sprintf("Thresholds armed: %d - %d", low, high), http.StatusOK)
	}
}

func (m *CMeter) DisarmThresholds() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TCS34725 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		if err := m.DisableInterrupt(); err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeResponse(w, r, "Thresholds disarmed", http.StatusOK)
	}
}

func parseThreshold(r *http.Request, key string) (uint16, error) {
	v, err := strconv.ParseUint(r.FormValue(key), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s threshold %q", key, r.FormValue(key))
	}
	return uint16(v), nil
}

// Journal and forward each notification until the channel is closed by a disarm
func (m *CMeter) RecordCrossings(ch <-chan tcs34725.Notification) {
	for n := range ch {
		low, high, _ := m.Thresholds()
		crossing := notify.Crossing{
			EventID: uuid.New().String(),
			Low:     low,
			High:    high,
			Time:    n.Time.UTC(),
		}
		if n.Err != nil {
			crossing.ClearError = n.Err.Error()
		}
		logrus.WithFields(logrus.Fields{
			"eventID": crossing.EventID,
			"low":     low,
			"high":    high,
		}).Info("Threshold crossed")

		if m.EventsDB != nil {
			_, err := m.EventsDB.Exec(
				"INSERT INTO threshold_events (event_id, low_threshold, high_threshold, clear_error, created_at) VALUES (?, ?, ?, ?, ?)",
				crossing.EventID,
				low,
				high,
				crossing.ClearError,
				crossing.Time.Format(tools.LayoutDB),
			)
			if err != nil {
				logrus.WithError(err).Error("Failed to journal threshold event")
			}
		}
		if m.Publisher != nil {
			if err := m.Publisher.PublishCrossing(crossing); err != nil {
				logrus.WithError(err).Warn("Failed to publish threshold event")
			}
		}
	}
	logrus.Debug("Notification channel closed")
}

// Serve the journaled threshold events in the requested date range
func (m *CMeter) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startDate, endDate := tools.ParseStartAndEndDate(r, m.Location, EVENTS_SPAN)
		events, err := m.getEvents(startDate, endDate)
		if err != nil {
			logrus.WithError(err).Error("Failed to query threshold events")
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		if strings.Contains(r.URL.Path, "/api/v1/") {
			serveJSON(w, events)
			return
		}
		tmpl, err := parseTemplateFile("html/events.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := tmpl.Execute(w, events); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func (m *CMeter) getEvents(startDate, endDate string) ([]Event, error) {
	events := []Event{}
	if m.EventsDB == nil {
		return events, nil
	}
	rows, err := m.EventsDB.Query(
		"SELECT event_id, low_threshold, high_threshold, clear_error, created_at FROM threshold_events WHERE created_at BETWEEN ? AND ? ORDER BY created_at DESC",
		startDate, endDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.EventID, &e.Low, &e.High, &e.ClearError, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func serveJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

// Populate the response div with a message, or reply with a JSON message
func ServeResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	if strings.Contains(r.URL.Path, "/api/v1/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"message": message})
		return
	}

	tmpl, err := parseTemplateFile("html/response.gohtml")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if err := tmpl.Execute(w, message); err != nil {
		logrus.WithError(err).Error("Failed to render response")
	}
}

func parseTemplateFile(path string) (*template.Template, error) {
	content, err := templateFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template: %w", err)
	}
	tmpl, err := template.New(path).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// Read from ReadingsChan, keep the results in memory for the dashboard
func (m *CMeter) MonitorResults(ctx context.Context) {
	logrus.Info("Monitoring for new color readings...")
	for {
		select {
		case <-ctx.Done():
			return
		case reading := <-m.ReadingsChan:
			logrus.WithFields(logrus.Fields{
				"jobID": reading.JobID,
				"lux":   fmt.Sprintf("%.5f", reading.Lux),
				"cct":   fmt.Sprintf("%.1f", reading.ColorTemperature),
			}).Info("Color reading")
			m.History.Add(reading)
		}
	}
}
