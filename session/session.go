// Package session implements the brew-session recorder (C9): a monotonic
// session id, an in-memory downsampled data log built on series.Series,
// and sqlite persistence of the session envelope plus its sample series.
// Grounded on the teacher's flightrecorder.FlightRecorder (tick-driven
// sample accumulation feeding a per-run record) and hub.Hub's sqlite
// query/exec pattern, generalized from alcobot's brew-stage gating to
// spec §4.7's explicit start/push/stop lifecycle.
package session

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Poit-alt/esp-brew-engine/series"
)

// DefaultCap is the number of sessions retained before the oldest is
// evicted, per spec §4.7.
const DefaultCap = 10

const seriesCapacity = 360

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id            INTEGER PRIMARY KEY,
	schedule_name TEXT NOT NULL,
	start_time    INTEGER NOT NULL,
	end_time      INTEGER,
	sample_count  INTEGER NOT NULL DEFAULT 0,
	avg_temp      REAL,
	min_temp      REAL,
	max_temp      REAL,
	avg_series    TEXT,
	target_series TEXT,
	duty_series   TEXT,
	completed     INTEGER NOT NULL DEFAULT 0
)`

const createSamplesTableSQL = `
CREATE TABLE IF NOT EXISTS session_samples (
	session_id  INTEGER NOT NULL,
	seq         INTEGER NOT NULL,
	ts          INTEGER NOT NULL,
	avg_temp    REAL NOT NULL,
	target_temp REAL NOT NULL,
	pid_duty    REAL NOT NULL,
	PRIMARY KEY (session_id, seq)
)`

const insertSessionSQL = `INSERT INTO sessions (id, schedule_name, start_time) VALUES (?, ?, ?)`
const updateSessionSQL = `UPDATE sessions SET end_time=?, sample_count=?, avg_temp=?, min_temp=?, max_temp=?, avg_series=?, target_series=?, duty_series=?, completed=1 WHERE id=?`
const insertSampleSQL = `INSERT INTO session_samples (session_id, seq, ts, avg_temp, target_temp, pid_duty) VALUES (?, ?, ?, ?, ?, ?)`
const selectOldestIDsSQL = `SELECT id FROM sessions ORDER BY id ASC`
const deleteSessionSQL = `DELETE FROM sessions WHERE id=?`
const deleteSamplesSQL = `DELETE FROM session_samples WHERE session_id=?`
const selectSessionSQL = `SELECT id, schedule_name, start_time, end_time, sample_count, avg_temp, min_temp, max_temp, avg_series, target_series, duty_series, completed FROM sessions WHERE id=?`
const selectSamplesSQL = `SELECT ts, avg_temp, target_temp, pid_duty FROM session_samples WHERE session_id=? ORDER BY seq ASC`

// Sample is one recorded data point. Fields are float64 despite spec §3
// modeling BrewSession's samples/min/avg/max as 8-bit values; the wider type
// costs nothing at these sample rates and durations and avoids a lossy
// truncation step on every push.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	AvgTemp    float64   `json:"avgTemp"`
	TargetTemp float64   `json:"targetTemp"`
	PIDDuty    float64   `json:"pidDuty"`
}

// Envelope is the persisted session summary, spec §3's BrewSession.
type Envelope struct {
	SessionID      int64
	ScheduleName   string
	StartTime      time.Time
	EndTime        time.Time
	DataPointCount int
	AvgTemperature float64
	MinTemperature float64
	MaxTemperature float64
	// AvgSeries/TargetSeries/DutySeries are the run's downsampled data log
	// (spec §4.7), built by series.Series so a full-length run still plots
	// in a bounded number of points.
	AvgSeries    []float64
	TargetSeries []float64
	DutySeries   []float64
	Completed    bool
}

// ErrNotRunning is returned by Push/Stop when no session is active.
var ErrNotRunning = errors.New("session: no active session")

// ErrAlreadyRunning is returned by Start when a session is already active.
var ErrAlreadyRunning = errors.New("session: already running")

// active holds the in-progress recording state.
type active struct {
	id           int64
	scheduleName string
	startTime    time.Time
	count        int
	sum          float64
	min          float64
	max          float64
	avgSeries    *series.Series
	targetSeries *series.Series
	dutySeries   *series.Series
}

// Recorder is the session store: sqlite-backed, capped, single active run.
type Recorder struct {
	mu     sync.Mutex
	db     *sql.DB
	cap    int
	nextID int64
	cur    *active
}

// Open opens (creating if necessary) the sqlite database at path.
func Open(path string, cap int) (*Recorder, error) {
	if cap <= 0 {
		cap = DefaultCap
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	if _, err := db.Exec(createSessionsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create sessions table: %w", err)
	}
	if _, err := db.Exec(createSamplesTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create samples table: %w", err)
	}

	r := &Recorder{db: db, cap: cap}
	row := db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM sessions`)
	var maxID int64
	if err := row.Scan(&maxID); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: load max id: %w", err)
	}
	r.nextID = maxID + 1
	return r, nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}

// Running reports whether a session is currently being recorded.
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// CurrentID returns the active session's id and true, or 0 and false when
// no session is running.
func (r *Recorder) CurrentID() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return 0, false
	}
	return r.cur.id, true
}

// Start begins a new session. Idempotent: calling Start while running is a
// no-op, per spec §8 testable property 6.
func (r *Recorder) Start(scheduleName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		return r.cur.id, nil
	}

	id := r.nextID
	r.nextID++
	now := time.Now()
	if _, err := r.db.Exec(insertSessionSQL, id, scheduleName, now.Unix()); err != nil {
		return 0, fmt.Errorf("session: insert: %w", err)
	}

	r.cur = &active{
		id:           id,
		scheduleName: scheduleName,
		startTime:    now,
		min:          math.Inf(1),
		max:          math.Inf(-1),
		avgSeries:    series.NewSeries(seriesCapacity),
		targetSeries: series.NewSeries(seriesCapacity),
		dutySeries:   series.NewSeries(seriesCapacity),
	}
	return id, nil
}

// Push appends one sample to the active session.
func (r *Recorder) Push(s Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return ErrNotRunning
	}

	seq := r.cur.count
	r.cur.count++
	r.cur.sum += s.AvgTemp
	if s.AvgTemp < r.cur.min {
		r.cur.min = s.AvgTemp
	}
	if s.AvgTemp > r.cur.max {
		r.cur.max = s.AvgTemp
	}
	r.cur.avgSeries.Push(s.AvgTemp)
	r.cur.targetSeries.Push(s.TargetTemp)
	r.cur.dutySeries.Push(s.PIDDuty)

	_, err := r.db.Exec(insertSampleSQL, r.cur.id, seq, s.Timestamp.Unix(), s.AvgTemp, s.TargetTemp, s.PIDDuty)
	return err
}

// Stop finalizes the active session, computing min/avg/max, persisting the
// envelope, and evicting the oldest session(s) beyond cap. Idempotent:
// calling Stop when not running is a no-op.
func (r *Recorder) Stop() (Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return Envelope{}, nil
	}

	cur := r.cur
	r.cur = nil

	avg := math.NaN()
	min, max := cur.min, cur.max
	if cur.count > 0 {
		avg = cur.sum / float64(cur.count)
	} else {
		min, max = math.NaN(), math.NaN()
	}
	end := time.Now()

	avgSeries := cur.avgSeries.Get()
	targetSeries := cur.targetSeries.Get()
	dutySeries := cur.dutySeries.Get()

	avgSeriesJSON, err := json.Marshal(avgSeries)
	if err != nil {
		return Envelope{}, fmt.Errorf("session: encode avg series: %w", err)
	}
	targetSeriesJSON, err := json.Marshal(targetSeries)
	if err != nil {
		return Envelope{}, fmt.Errorf("session: encode target series: %w", err)
	}
	dutySeriesJSON, err := json.Marshal(dutySeries)
	if err != nil {
		return Envelope{}, fmt.Errorf("session: encode duty series: %w", err)
	}

	if _, err := r.db.Exec(updateSessionSQL, end.Unix(), cur.count, avg, min, max,
		string(avgSeriesJSON), string(targetSeriesJSON), string(dutySeriesJSON), cur.id); err != nil {
		return Envelope{}, fmt.Errorf("session: finalize: %w", err)
	}

	if err := r.evictOverflowLocked(); err != nil {
		return Envelope{}, err
	}

	return Envelope{
		SessionID: cur.id, ScheduleName: cur.scheduleName, StartTime: cur.startTime, EndTime: end,
		DataPointCount: cur.count, AvgTemperature: avg, MinTemperature: min, MaxTemperature: max,
		AvgSeries: avgSeries, TargetSeries: targetSeries, DutySeries: dutySeries, Completed: true,
	}, nil
}

// SetCap changes the retention cap, evicting sessions now over the limit
// immediately (spec §4.7's SetStatisticsConfig command).
func (r *Recorder) SetCap(n int) error {
	if n <= 0 {
		n = DefaultCap
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cap = n
	return r.evictOverflowLocked()
}

func (r *Recorder) evictOverflowLocked() error {
	rows, err := r.db.Query(selectOldestIDsSQL)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for len(ids) > r.cap {
		victim := ids[0]
		ids = ids[1:]
		if _, err := r.db.Exec(deleteSamplesSQL, victim); err != nil {
			return err
		}
		if _, err := r.db.Exec(deleteSessionSQL, victim); err != nil {
			return err
		}
	}
	return nil
}

// Load fetches a persisted session envelope and its raw samples.
func (r *Recorder) Load(id int64) (Envelope, []Sample, error) {
	row := r.db.QueryRow(selectSessionSQL, id)
	var (
		env                                              Envelope
		startUnix                                        int64
		endUnix                                          sql.NullInt64
		avg, min, max                                    sql.NullFloat64
		avgSeriesJSON, targetSeriesJSON, dutySeriesJSON sql.NullString
		completed                                        int
	)
	if err := row.Scan(&env.SessionID, &env.ScheduleName, &startUnix, &endUnix, &env.DataPointCount, &avg, &min, &max,
		&avgSeriesJSON, &targetSeriesJSON, &dutySeriesJSON, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Envelope{}, nil, fmt.Errorf("session: %d not found", id)
		}
		return Envelope{}, nil, err
	}
	env.StartTime = time.Unix(startUnix, 0)
	if endUnix.Valid {
		env.EndTime = time.Unix(endUnix.Int64, 0)
	}
	env.AvgTemperature = avg.Float64
	env.MinTemperature = min.Float64
	env.MaxTemperature = max.Float64
	env.Completed = completed != 0
	if avgSeriesJSON.Valid {
		_ = json.Unmarshal([]byte(avgSeriesJSON.String), &env.AvgSeries)
	}
	if targetSeriesJSON.Valid {
		_ = json.Unmarshal([]byte(targetSeriesJSON.String), &env.TargetSeries)
	}
	if dutySeriesJSON.Valid {
		_ = json.Unmarshal([]byte(dutySeriesJSON.String), &env.DutySeries)
	}

	rows, err := r.db.Query(selectSamplesSQL, id)
	if err != nil {
		return env, nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var ts int64
		var s Sample
		if err := rows.Scan(&ts, &s.AvgTemp, &s.TargetTemp, &s.PIDDuty); err != nil {
			return env, nil, err
		}
		s.Timestamp = time.Unix(ts, 0)
		samples = append(samples, s)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	return env, samples, nil
}

// ExportJSON writes the session envelope plus its samples as JSON, per
// spec §4.7's JSON export.
func ExportJSON(w io.Writer, env Envelope, samples []Sample) error {
	return json.NewEncoder(w).Encode(struct {
		Envelope
		Samples []Sample `json:"samples"`
	}{env, samples})
}

// ExportCSV writes "sessionId,scheduleName,timestamp,avgTemp,targetTemp,pidOutput"
// rows, per spec §4.7's CSV export.
func ExportCSV(w io.Writer, env Envelope, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sessionId", "scheduleName", "timestamp", "avgTemp", "targetTemp", "pidOutput"}); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write([]string{
			fmt.Sprintf("%d", env.SessionID),
			env.ScheduleName,
			s.Timestamp.Format(time.RFC3339),
			fmt.Sprintf("%g", s.AvgTemp),
			fmt.Sprintf("%g", s.TargetTemp),
			fmt.Sprintf("%g", s.PIDDuty),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
