package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout-sync/internal/config"
	"roundabout-sync/internal/inventory"
	"roundabout-sync/internal/remote"
	"roundabout-sync/internal/store"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type fakeSource struct {
	fi       *inventory.FieldInstance
	entities map[inventory.Kind][]inventory.Entity
	photos   map[int64][]inventory.Photo
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		fi:       &inventory.FieldInstance{ID: 1, Name: "RV Atlantis", StartDate: ptr(testStart), IsThisInstance: true},
		entities: make(map[inventory.Kind][]inventory.Entity),
		photos:   make(map[int64][]inventory.Photo),
	}
}

func (f *fakeSource) add(entities ...inventory.Entity) {
	for _, e := range entities {
		f.entities[e.Kind()] = append(f.entities[e.Kind()], e)
	}
}

func (f *fakeSource) CurrentFieldInstance(ctx context.Context) (*inventory.FieldInstance, error) {
	if f.fi == nil {
		return nil, inventory.ErrNotFieldInstance
	}
	return f.fi, nil
}

func (f *fakeSource) CreatedSince(ctx context.Context, kind inventory.Kind, since time.Time) ([]inventory.Entity, error) {
	var out []inventory.Entity
	for _, e := range f.entities[kind] {
		if !e.Created().Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) UpdatedSince(ctx context.Context, kind inventory.Kind, since time.Time) ([]inventory.Entity, error) {
	if kind == inventory.KindAction {
		return nil, nil
	}
	var out []inventory.Entity
	for _, e := range f.entities[kind] {
		if !e.Updated().Before(since) && e.Created().Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) PhotosForAction(ctx context.Context, actionID int64) ([]inventory.Photo, error) {
	return f.photos[actionID], nil
}

type request struct {
	Method string
	Path   string
	Body   map[string]any
	Form   map[string]string
	File   []byte
}

// homeBase imitates the REST API of the home base RDB.
type homeBase struct {
	mu       sync.Mutex
	requests []request
	nextID   int64
	taken    map[string]bool
	fail     map[string]int
}

func newHomeBase() *homeBase {
	return &homeBase{nextID: 1000, taken: make(map[string]bool), fail: make(map[string]int)}
}

func (h *homeBase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	req := request{Method: r.Method, Path: r.URL.Path}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			req.Form = make(map[string]string)
			for k, v := range r.MultipartForm.Value {
				req.Form[k] = v[0]
			}
			if f, _, err := r.FormFile("photo"); err == nil {
				buf := make([]byte, 1<<16)
				n, _ := f.Read(buf)
				req.File = buf[:n]
				f.Close()
			}
		}
	} else if r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&req.Body)
	}
	h.requests = append(h.requests, req)

	if status, ok := h.fail[r.Method+" "+r.URL.Path]; ok {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"detail":"rejected"}`)
		return
	}

	switch r.Method {
	case http.MethodGet:
		serial := r.URL.Query().Get("serial_number")
		if h.taken[serial] {
			fmt.Fprintf(w, `[{"id":1,"serial_number":%q}]`, serial)
			return
		}
		fmt.Fprint(w, `[]`)
	case http.MethodPost:
		h.nextID++
		w.WriteHeader(http.StatusCreated)
		if strings.HasSuffix(r.URL.Path, "/actions/") {
			fmt.Fprintf(w, `{"action":{"id":%d}}`, h.nextID)
			return
		}
		fmt.Fprintf(w, `{"id":%d}`, h.nextID)
	default:
		fmt.Fprint(w, `{}`)
	}
}

func (h *homeBase) find(method, path string) []request {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []request
	for _, r := range h.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (h *homeBase) count(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (h *homeBase) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = nil
	h.fail = make(map[string]int)
}

func newTestManager(t *testing.T, src Source, hb *homeBase) (*Manager, store.Store) {
	t.Helper()
	srv := httptest.NewServer(hb)
	t.Cleanup(srv.Close)

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Remote: config.RemoteConfig{Name: "home", BaseURL: srv.URL, APIPath: "/api/v1"},
		Sync:   config.SyncConfig{SerialRetries: 3, MediaRoot: t.TempDir()},
	}
	client := remote.NewClient(srv.Client(), remote.Options{BaseURL: srv.URL, APIPath: "/api/v1", Token: "t0ken"})

	m := NewManager(cfg, src, st, client)
	m.now = func() time.Time { return testStart.Add(24 * time.Hour) }
	return m, st
}

func TestRunCreatesNewRecordsWithoutLocalID(t *testing.T) {
	src := newFakeSource()
	src.add(&inventory.Location{ID: 10, Name: "Deck", Parent: ptr(int64(9)), CreatedAt: testStart.Add(time.Hour), UpdatedAt: testStart.Add(time.Hour)})
	hb := newHomeBase()
	m, st := newTestManager(t, src, hb)

	report, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	posts := hb.find(http.MethodPost, "/api/v1/locations/")
	require.Len(t, posts, 1)
	_, hasID := posts[0].Body["id"]
	assert.False(t, hasID)
	assert.Equal(t, "Deck", posts[0].Body["name"])
	assert.EqualValues(t, 9, posts[0].Body["parent"])

	assert.Equal(t, 1, report.Stats[inventory.KindLocation].Created)
	assert.Equal(t, http.StatusCreated, report.LastStatusCode)
	assert.Equal(t, store.StatusSuccess, report.Status)

	mappings, err := st.ListIDMappings(context.Background(), "home")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, int64(10), mappings[0].LocalID)
	assert.Equal(t, int64(1001), mappings[0].RemoteID)
}

func TestRunPatchesModifiedRecords(t *testing.T) {
	src := newFakeSource()
	src.add(&inventory.Inventory{ID: 5, SerialNumber: "SN-5", Location: ptr(int64(2)),
		CreatedAt: testStart.Add(-time.Hour), UpdatedAt: testStart.Add(time.Hour)})
	src.add(&inventory.Inventory{ID: 6, SerialNumber: "SN-6",
		CreatedAt: testStart.Add(-time.Hour), UpdatedAt: testStart.Add(-time.Minute)})
	hb := newHomeBase()
	m, _ := newTestManager(t, src, hb)

	report, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	patches := hb.find(http.MethodPatch, "/api/v1/inventory/5/")
	require.Len(t, patches, 1)
	assert.EqualValues(t, 5, patches[0].Body["id"])
	assert.Equal(t, "SN-5", patches[0].Body["serial_number"])
	assert.Empty(t, hb.find(http.MethodPatch, "/api/v1/inventory/6/"))
	assert.Equal(t, 0, hb.count(http.MethodPost))
	assert.Equal(t, 1, report.Stats[inventory.KindInventory].Updated)
}

func TestRunRemapsReferencesToNewParents(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	// Child listed before its parent to exercise parent-first ordering.
	src.add(
		&inventory.Location{ID: 11, Name: "Lab", Parent: ptr(int64(10)), CreatedAt: at, UpdatedAt: at},
		&inventory.Location{ID: 10, Name: "Ship", CreatedAt: at, UpdatedAt: at},
		&inventory.Field{ID: 30, FieldName: "Calibration", FieldType: "CharField", CreatedAt: at, UpdatedAt: at},
		&inventory.Inventory{ID: 20, SerialNumber: "SN-20", Location: ptr(int64(11)), CreatedAt: at, UpdatedAt: at},
		&inventory.Inventory{ID: 21, SerialNumber: "SN-21", Parent: ptr(int64(20)), Location: ptr(int64(3)), CreatedAt: at.Add(time.Second), UpdatedAt: at.Add(time.Second)},
		&inventory.Action{ID: 40, ActionType: inventory.ActionAdd, Inventory: ptr(int64(21)), Location: ptr(int64(11)), CreatedAt: at},
		&inventory.FieldValue{ID: 50, FieldValue: "2026-01", Field: ptr(int64(30)), Inventory: ptr(int64(20)), CreatedAt: at, UpdatedAt: at},
	)
	hb := newHomeBase()
	m, _ := newTestManager(t, src, hb)

	report, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	locs := hb.find(http.MethodPost, "/api/v1/locations/")
	require.Len(t, locs, 2)
	assert.Equal(t, "Ship", locs[0].Body["name"])
	assert.Equal(t, "Lab", locs[1].Body["name"])
	assert.EqualValues(t, 1001, locs[1].Body["parent"])

	items := hb.find(http.MethodPost, "/api/v1/inventory/")
	require.Len(t, items, 2)
	assert.EqualValues(t, 1002, items[0].Body["location"])
	assert.EqualValues(t, 1004, items[1].Body["parent"])
	assert.EqualValues(t, 3, items[1].Body["location"])

	actions := hb.find(http.MethodPost, "/api/v1/actions/")
	require.Len(t, actions, 1)
	assert.EqualValues(t, 1005, actions[0].Body["inventory"])
	assert.EqualValues(t, 1002, actions[0].Body["location"])

	values := hb.find(http.MethodPost, "/api/v1/user-defined-fields/field-values/")
	require.Len(t, values, 1)
	assert.EqualValues(t, 1003, values[0].Body["field"])
	assert.EqualValues(t, 1004, values[0].Body["inventory"])

	assert.Equal(t, 1, report.Stats[inventory.KindAction].Created)
	assert.Equal(t, 7, report.Totals().Created)
}

func TestRunRenamesCollidingSerial(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(&inventory.Inventory{ID: 20, SerialNumber: "SN-1", CreatedAt: at, UpdatedAt: at})
	hb := newHomeBase()
	hb.taken["SN-1"] = true
	hb.taken["SN-1-7"] = true
	m, st := newTestManager(t, src, hb)
	suffixes := []int{7, 8}
	m.conflicts.suffix = func() int {
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s
	}

	_, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	posts := hb.find(http.MethodPost, "/api/v1/inventory/")
	require.Len(t, posts, 1)
	assert.Equal(t, "SN-1-8", posts[0].Body["serial_number"])
	assert.Equal(t, "SN-1", posts[0].Body["old_serial_number"])

	conflicts, err := st.ListConflicts(context.Background(), true, 10, 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictSerialNumber, conflicts[0].ConflictType)
	assert.Equal(t, StrategySuffix, conflicts[0].ResolutionStrategy.String)
	assert.JSONEq(t, `{"serial_number":"SN-1-8"}`, string(conflicts[0].ResolvedData))
}

func TestRunGivesUpOnExhaustedSerials(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(&inventory.Inventory{ID: 20, SerialNumber: "SN-1", CreatedAt: at, UpdatedAt: at})
	hb := newHomeBase()
	hb.taken["SN-1"] = true
	hb.taken["SN-1-7"] = true
	m, _ := newTestManager(t, src, hb)
	m.conflicts.suffix = func() int { return 7 }

	report, err := m.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialExhausted)
	assert.Empty(t, hb.find(http.MethodPost, "/api/v1/inventory/"))
	assert.Equal(t, 1, report.Stats[inventory.KindInventory].Failed)
}

func TestRunFailureFailsAggregateAndKeepsCheckpoint(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(
		&inventory.Location{ID: 10, Name: "Ship", CreatedAt: at, UpdatedAt: at},
		&inventory.Inventory{ID: 20, SerialNumber: "SN-20", Location: ptr(int64(10)), CreatedAt: at, UpdatedAt: at},
		&inventory.Inventory{ID: 22, SerialNumber: "SN-22", CreatedAt: at, UpdatedAt: at},
	)
	hb := newHomeBase()
	hb.fail["POST /api/v1/locations/"] = http.StatusBadRequest
	m, st := newTestManager(t, src, hb)

	report, err := m.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.ErrorIs(t, err, ErrMappingMissing)

	var se *remote.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)

	assert.Equal(t, store.StatusFailed, report.Status)
	assert.Equal(t, 1, report.Stats[inventory.KindLocation].Failed)
	assert.Equal(t, 1, report.Stats[inventory.KindInventory].Failed)
	assert.Equal(t, 1, report.Stats[inventory.KindInventory].Created)

	// The independent item went through, the dependent one never left.
	items := hb.find(http.MethodPost, "/api/v1/inventory/")
	require.Len(t, items, 1)
	assert.Equal(t, "SN-22", items[0].Body["serial_number"])

	state, err := st.GetSyncState(context.Background(), "home")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.LastSyncTime.Valid)
	assert.Equal(t, store.StatusFailed, state.Status)

	history, err := st.GetSyncHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.StatusFailed, history[0].Status)
	assert.Equal(t, 2, history[0].Failed)
}

func TestSecondRunCreatesNoDuplicates(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(
		&inventory.Location{ID: 10, Name: "Ship", CreatedAt: at, UpdatedAt: at},
		&inventory.Inventory{ID: 20, SerialNumber: "SN-20", Location: ptr(int64(10)), CreatedAt: at, UpdatedAt: at},
	)
	hb := newHomeBase()
	m, st := newTestManager(t, src, hb)

	_, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, hb.count(http.MethodPost))

	state, err := st.GetSyncState(context.Background(), "home")
	require.NoError(t, err)
	require.True(t, state.LastSyncTime.Valid)
	assert.True(t, state.LastSyncTime.Time.Equal(testStart.Add(24*time.Hour)))

	hb.reset()
	m.now = func() time.Time { return testStart.Add(48 * time.Hour) }
	report, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, hb.count(http.MethodPost))
	assert.Equal(t, 0, hb.count(http.MethodPatch))
	assert.True(t, report.Cursor.Equal(testStart.Add(24*time.Hour)))
}

func TestRerunAfterPartialFailurePatchesCreatedRecords(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(
		&inventory.Location{ID: 10, Name: "Ship", CreatedAt: at, UpdatedAt: at},
		&inventory.Inventory{ID: 20, SerialNumber: "SN-20", Location: ptr(int64(10)), CreatedAt: at, UpdatedAt: at},
	)
	hb := newHomeBase()
	hb.fail["POST /api/v1/inventory/"] = http.StatusBadRequest
	m, _ := newTestManager(t, src, hb)

	_, err := m.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	require.Len(t, hb.find(http.MethodPost, "/api/v1/locations/"), 1)

	hb.reset()
	_, err = m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, hb.find(http.MethodPost, "/api/v1/locations/"))
	assert.Len(t, hb.find(http.MethodPatch, "/api/v1/locations/1001/"), 1)
	items := hb.find(http.MethodPost, "/api/v1/inventory/")
	require.Len(t, items, 1)
	assert.EqualValues(t, 1001, items[0].Body["location"])
}

func TestRunUploadsPhotosOfCreatedActions(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(
		&inventory.Inventory{ID: 20, SerialNumber: "SN-20", CreatedAt: at, UpdatedAt: at},
		&inventory.Action{ID: 40, ActionType: inventory.ActionNote, Inventory: ptr(int64(20)), CreatedAt: at},
	)
	src.photos[40] = []inventory.Photo{{ID: 60, Path: "notes/deck.jpg", Inventory: ptr(int64(20)), Action: ptr(int64(40)), User: ptr(int64(3))}}
	hb := newHomeBase()
	m, _ := newTestManager(t, src, hb)

	require.NoError(t, os.MkdirAll(filepath.Join(m.cfg.Sync.MediaRoot, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(m.cfg.Sync.MediaRoot, "notes", "deck.jpg"), []byte("jpeg"), 0o644))

	report, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	uploads := hb.find(http.MethodPost, "/api/v1/photos/")
	require.Len(t, uploads, 1)
	assert.Equal(t, "1002", uploads[0].Form["action"])
	assert.Equal(t, "1001", uploads[0].Form["inventory"])
	assert.Equal(t, "3", uploads[0].Form["user"])
	assert.Equal(t, []byte("jpeg"), uploads[0].File)
	assert.Equal(t, 1, report.Stats[inventory.KindPhoto].Created)
}

func TestRerunUploadsPhotoThatFailedOnce(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(
		&inventory.Inventory{ID: 20, SerialNumber: "SN-20", CreatedAt: at, UpdatedAt: at},
		&inventory.Action{ID: 40, ActionType: inventory.ActionNote, Inventory: ptr(int64(20)), CreatedAt: at},
	)
	src.photos[40] = []inventory.Photo{{ID: 60, Path: "deck.jpg", Inventory: ptr(int64(20)), Action: ptr(int64(40))}}
	hb := newHomeBase()
	hb.fail["POST /api/v1/photos/"] = http.StatusBadRequest
	m, st := newTestManager(t, src, hb)
	require.NoError(t, os.WriteFile(filepath.Join(m.cfg.Sync.MediaRoot, "deck.jpg"), []byte("jpeg"), 0o644))

	report, err := m.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, report.Stats[inventory.KindPhoto].Failed)
	state, err := st.GetSyncState(context.Background(), "home")
	require.NoError(t, err)
	assert.False(t, state.LastSyncTime.Valid)

	hb.reset()
	report, err = m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, hb.find(http.MethodPost, "/api/v1/actions/"))
	assert.Len(t, hb.find(http.MethodPatch, "/api/v1/actions/1002/"), 1)
	uploads := hb.find(http.MethodPost, "/api/v1/photos/")
	require.Len(t, uploads, 1)
	assert.Equal(t, "1002", uploads[0].Form["action"])
	assert.Equal(t, "1001", uploads[0].Form["inventory"])
	assert.Equal(t, 1, report.Stats[inventory.KindPhoto].Created)

	state, err = st.GetSyncState(context.Background(), "home")
	require.NoError(t, err)
	assert.True(t, state.LastSyncTime.Valid)

	// Same records again from the start date: the photo is not sent twice.
	require.NoError(t, m.ResetCheckpoint(context.Background()))
	hb.reset()
	_, err = m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, hb.find(http.MethodPost, "/api/v1/photos/"))
	assert.Len(t, hb.find(http.MethodPatch, "/api/v1/actions/1002/"), 1)
}

func TestRunCreatesDestinationRootBeforeItsUsers(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(
		&inventory.Inventory{ID: 20, SerialNumber: "SN-20", AssignedDestinationRoot: ptr(int64(21)), CreatedAt: at, UpdatedAt: at},
		&inventory.Inventory{ID: 21, SerialNumber: "SN-21", CreatedAt: at.Add(time.Second), UpdatedAt: at.Add(time.Second)},
	)
	hb := newHomeBase()
	m, _ := newTestManager(t, src, hb)

	report, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	items := hb.find(http.MethodPost, "/api/v1/inventory/")
	require.Len(t, items, 2)
	assert.Equal(t, "SN-21", items[0].Body["serial_number"])
	assert.Equal(t, "SN-20", items[1].Body["serial_number"])
	assert.EqualValues(t, 1001, items[1].Body["assigned_destination_root"])
	assert.Equal(t, 2, report.Stats[inventory.KindInventory].Created)
}

func TestRunMissingPhotoFileFailsRun(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(&inventory.Action{ID: 40, ActionType: inventory.ActionNote, CreatedAt: at})
	src.photos[40] = []inventory.Photo{{ID: 60, Path: "gone.jpg"}}
	hb := newHomeBase()
	m, _ := newTestManager(t, src, hb)

	report, err := m.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, report.Stats[inventory.KindPhoto].Failed)
}

func TestRunRefusedWhileRunning(t *testing.T) {
	m, _ := newTestManager(t, newFakeSource(), newHomeBase())
	require.NoError(t, m.begin())

	report, err := m.Run(context.Background(), RunOptions{})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, IsAlreadyRunning(err))
	assert.ErrorIs(t, m.ResetCheckpoint(context.Background()), ErrAlreadyRunning)

	m.finish(nil)
	assert.Equal(t, StatusIdle, m.GetStatus())
}

func TestRunRequiresFieldInstance(t *testing.T) {
	src := newFakeSource()
	src.fi = nil
	m, _ := newTestManager(t, src, newHomeBase())

	report, err := m.Run(context.Background(), RunOptions{})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, inventory.ErrNotFieldInstance)
	assert.Equal(t, StatusIdle, m.GetStatus())
}

func TestResetCheckpointRestartsFromStartDate(t *testing.T) {
	src := newFakeSource()
	at := testStart.Add(time.Hour)
	src.add(&inventory.Location{ID: 10, Name: "Ship", CreatedAt: at, UpdatedAt: at})
	hb := newHomeBase()
	m, _ := newTestManager(t, src, hb)

	_, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.NoError(t, m.ResetCheckpoint(context.Background()))

	state, err := m.Checkpoint(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)

	hb.reset()
	_, err = m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, hb.find(http.MethodPost, "/api/v1/locations/"), 1)
}
