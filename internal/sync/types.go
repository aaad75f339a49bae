package sync

import (
	"errors"
	"fmt"
	"time"

	"roundabout-sync/internal/inventory"
	"roundabout-sync/internal/remote"
)

var (
	ErrAlreadyRunning  = errors.New("sync is already running")
	ErrMappingMissing  = errors.New("remapping expected but missing")
	ErrSerialExhausted = errors.New("no free serial number suffix")
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// ChangeEvent is a row change seen on a watched local table.
type ChangeEvent struct {
	Type       EventType
	Schema     string
	Table      string
	Rows       int
	Timestamp  uint32
	BinlogFile string
	BinlogPos  uint32
}

func (e ChangeEvent) String() string {
	return fmt.Sprintf("[%s] %s.%s (%d rows)", e.Type, e.Schema, e.Table, e.Rows)
}

type KindStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// OpError is one failed create, update or upload.
type OpError struct {
	Kind    inventory.Kind `json:"kind"`
	LocalID int64          `json:"local_id"`
	Op      string         `json:"op"`
	Err     error          `json:"-"`
	Message string         `json:"message"`
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s %d: %v", e.Op, e.Kind, e.LocalID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Report aggregates the outcome of one run.
type Report struct {
	RunID          string                        `json:"run_id"`
	Target         string                        `json:"target"`
	Cursor         time.Time                     `json:"cursor"`
	StartedAt      time.Time                     `json:"started_at"`
	FinishedAt     time.Time                     `json:"finished_at"`
	Status         string                        `json:"status"`
	Stats          map[inventory.Kind]*KindStats `json:"stats"`
	Errors         []*OpError                    `json:"errors,omitempty"`
	LastStatusCode int                           `json:"last_status_code"`
	fatal          error
}

func newReport(runID, target string, cursor, started time.Time) *Report {
	r := &Report{
		RunID:     runID,
		Target:    target,
		Cursor:    cursor,
		StartedAt: started,
		Stats:     make(map[inventory.Kind]*KindStats),
	}
	for _, k := range Kinds() {
		r.Stats[k] = &KindStats{}
	}
	return r
}

func (r *Report) stats(kind inventory.Kind) *KindStats {
	s, ok := r.Stats[kind]
	if !ok {
		s = &KindStats{}
		r.Stats[kind] = s
	}
	return s
}

func (r *Report) fail(kind inventory.Kind, localID int64, op string, err error) {
	r.stats(kind).Failed++
	r.Errors = append(r.Errors, &OpError{Kind: kind, LocalID: localID, Op: op, Err: err, Message: err.Error()})
}

// observe keeps the status code of the latest response, failed or not.
func (r *Report) observe(resp *remote.Response, err error) {
	if resp != nil {
		r.LastStatusCode = resp.StatusCode
		return
	}
	var se *remote.StatusError
	if errors.As(err, &se) {
		r.LastStatusCode = se.StatusCode
	}
}

// Totals sums the per kind counters.
func (r *Report) Totals() KindStats {
	var t KindStats
	for _, s := range r.Stats {
		t.Created += s.Created
		t.Updated += s.Updated
		t.Failed += s.Failed
	}
	return t
}

// Err is nil only when every operation of the run succeeded.
func (r *Report) Err() error {
	if r.fatal == nil && len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errors)+1)
	if r.fatal != nil {
		errs = append(errs, r.fatal)
	}
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

func (r *Report) OK() bool {
	return r.Err() == nil
}
