package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"roundabout-sync/internal/inventory"
	"roundabout-sync/internal/logger"
	"roundabout-sync/internal/metrics"
	"roundabout-sync/internal/remote"
	"roundabout-sync/internal/store"
)

// run carries the state of one sync pass.
type run struct {
	id      string
	target  string
	cursor  time.Time
	client  *remote.Client
	remap   *Remapper
	report  *Report
	actions []Pair
}

type pending struct {
	entity inventory.Entity
	record Record
}

// rewriteRefs replaces foreign references to records created in this run
// with their remote identifiers.
func rewriteRefs(rec Record, spec entitySpec, remap *Remapper) error {
	for _, ref := range spec.refs {
		id, ok := rec.ID(ref.field)
		if !ok {
			continue
		}
		res := remap.Resolve(ref.kind, id)
		switch res.Outcome {
		case Missing:
			return fmt.Errorf("%s -> %s %d: %w", ref.field, ref.kind, id, ErrMappingMissing)
		case Remapped:
			rec[ref.field] = res.ID
		}
	}
	return nil
}

// dependenciesFirst orders items so that a record referenced through one of
// fields by another record in the same set comes before it. Otherwise
// creation order is kept.
func dependenciesFirst(items []pending, fields []string) []pending {
	if len(fields) == 0 || len(items) < 2 {
		return items
	}

	index := make(map[int64]int, len(items))
	for i, it := range items {
		index[it.entity.LocalID()] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(items))
	out := make([]pending, 0, len(items))

	var visit func(i int)
	visit = func(i int) {
		if state[i] != unvisited {
			return
		}
		state[i] = visiting
		for _, f := range fields {
			if id, ok := items[i].record.ID(f); ok {
				if j, ok := index[id]; ok && j != i {
					visit(j)
				}
			}
		}
		state[i] = done
		out = append(out, items[i])
	}
	for i := range items {
		visit(i)
	}
	return out
}

func (m *Manager) syncKind(ctx context.Context, r *run, spec entitySpec) error {
	created, err := m.source.CreatedSince(ctx, spec.kind, r.cursor)
	if err != nil {
		return fmt.Errorf("select new %s: %w", spec.kind, err)
	}
	modified, err := m.source.UpdatedSince(ctx, spec.kind, r.cursor)
	if err != nil {
		return fmt.Errorf("select modified %s: %w", spec.kind, err)
	}

	logger.Log.Info("Syncing entity type",
		zap.String("kind", string(spec.kind)),
		zap.Int("new", len(created)),
		zap.Int("modified", len(modified)),
	)

	items := make([]pending, 0, len(created))
	for _, e := range created {
		r.remap.Expect(spec.kind, e.LocalID())
		rec, err := Serialize(e, spec.fields)
		if err != nil {
			m.failOp(r, spec.kind, e.LocalID(), "serialize", err)
			continue
		}
		items = append(items, pending{entity: e, record: rec})
	}

	for _, it := range dependenciesFirst(items, spec.selfRefs()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.createOne(ctx, r, spec, it)
	}

	for _, e := range modified {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.updateOne(ctx, r, spec, e)
	}
	return nil
}

func (m *Manager) createOne(ctx context.Context, r *run, spec entitySpec, it pending) {
	oldID := it.entity.LocalID()
	rec := it.record
	rec.StripID()

	if err := rewriteRefs(rec, spec, r.remap); err != nil {
		m.failOp(r, spec.kind, oldID, "create", err)
		return
	}

	// Created by an earlier, partially failed run.
	if remoteID, ok := r.remap.Lookup(spec.kind, oldID); ok {
		resp, err := r.client.Patch(ctx, spec.endpoint+strconv.FormatInt(remoteID, 10)+"/", rec)
		r.report.observe(resp, err)
		if err != nil {
			m.failOp(r, spec.kind, oldID, "update", err)
			return
		}
		if spec.kind == inventory.KindAction {
			r.actions = append(r.actions, Pair{Old: oldID, New: remoteID})
		}
		r.report.stats(spec.kind).Updated++
		metrics.IncUpdated(string(spec.kind))
		return
	}

	if item, ok := it.entity.(*inventory.Inventory); ok {
		if err := m.conflicts.ensureUniqueSerial(ctx, r, item, rec); err != nil {
			m.failOp(r, spec.kind, oldID, "create", err)
			return
		}
	}

	resp, err := r.client.Post(ctx, spec.endpoint, rec)
	r.report.observe(resp, err)
	if err != nil {
		m.failOp(r, spec.kind, oldID, "create", err)
		return
	}

	newID, err := parseRemoteID(resp.Body, string(spec.kind))
	if err != nil {
		m.failOp(r, spec.kind, oldID, "create", err)
		return
	}

	r.remap.Record(spec.kind, oldID, newID)
	if spec.kind == inventory.KindAction {
		r.actions = append(r.actions, Pair{Old: oldID, New: newID})
	}
	r.report.stats(spec.kind).Created++
	metrics.IncCreated(string(spec.kind))
	m.saveMapping(ctx, r, spec.kind, oldID, newID)
}

// saveMapping persists oldID -> newID so that later runs update the record
// instead of creating it again.
func (m *Manager) saveMapping(ctx context.Context, r *run, kind inventory.Kind, oldID, newID int64) {
	err := m.store.SaveIDMapping(ctx, &store.IDMapping{
		Target:    r.target,
		Kind:      string(kind),
		LocalID:   oldID,
		RemoteID:  newID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		m.failOp(r, kind, oldID, "save mapping", err)
	}
}

func (m *Manager) updateOne(ctx context.Context, r *run, spec entitySpec, e inventory.Entity) {
	localID := e.LocalID()
	rec, err := Serialize(e, spec.fields)
	if err != nil {
		m.failOp(r, spec.kind, localID, "serialize", err)
		return
	}
	if err := rewriteRefs(rec, spec, r.remap); err != nil {
		m.failOp(r, spec.kind, localID, "update", err)
		return
	}

	remoteID := localID
	if id, ok := r.remap.Lookup(spec.kind, localID); ok {
		remoteID = id
		rec["id"] = id
	}

	resp, err := r.client.Patch(ctx, spec.endpoint+strconv.FormatInt(remoteID, 10)+"/", rec)
	r.report.observe(resp, err)
	if err != nil {
		m.failOp(r, spec.kind, localID, "update", err)
		return
	}
	r.report.stats(spec.kind).Updated++
	metrics.IncUpdated(string(spec.kind))
}

// uploadPhotos sends the photo notes of every action created in this run or
// an earlier one that did not finish. Photos already uploaded are skipped.
func (m *Manager) uploadPhotos(ctx context.Context, r *run) error {
	for _, action := range r.actions {
		photos, err := m.source.PhotosForAction(ctx, action.Old)
		if err != nil {
			return fmt.Errorf("select photos of action %d: %w", action.Old, err)
		}
		for _, p := range photos {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.uploadPhoto(ctx, r, action.New, p)
		}
	}
	return nil
}

func (m *Manager) uploadPhoto(ctx context.Context, r *run, remoteAction int64, p inventory.Photo) {
	if _, ok := r.remap.Lookup(inventory.KindPhoto, p.ID); ok {
		return
	}

	content, err := os.ReadFile(filepath.Join(m.cfg.Sync.MediaRoot, filepath.FromSlash(p.Path)))
	if err != nil {
		m.failOp(r, inventory.KindPhoto, p.ID, "upload", err)
		return
	}

	fields := map[string]string{"action": strconv.FormatInt(remoteAction, 10)}
	if p.Inventory != nil {
		res := r.remap.Resolve(inventory.KindInventory, *p.Inventory)
		if res.Outcome == Missing {
			m.failOp(r, inventory.KindPhoto, p.ID, "upload",
				fmt.Errorf("inventory %d: %w", *p.Inventory, ErrMappingMissing))
			return
		}
		fields["inventory"] = strconv.FormatInt(res.ID, 10)
	}
	if p.User != nil {
		fields["user"] = strconv.FormatInt(*p.User, 10)
	}

	resp, err := r.client.Upload(ctx, photoEndpoint, fields, remote.File{
		Field:    "photo",
		Filename: filepath.Base(p.Path),
		Content:  content,
	})
	r.report.observe(resp, err)
	if err != nil {
		m.failOp(r, inventory.KindPhoto, p.ID, "upload", err)
		return
	}
	newID, err := parseRemoteID(resp.Body, string(inventory.KindPhoto))
	if err != nil {
		// A zero id still marks the photo as sent.
		logger.Log.Warn("Photo uploaded without an id in the response",
			zap.Int64("photo", p.ID), zap.Error(err))
	}
	r.remap.Record(inventory.KindPhoto, p.ID, newID)
	r.report.stats(inventory.KindPhoto).Created++
	metrics.IncCreated(string(inventory.KindPhoto))
	m.saveMapping(ctx, r, inventory.KindPhoto, p.ID, newID)
}

func (m *Manager) failOp(r *run, kind inventory.Kind, localID int64, op string, err error) {
	logger.Log.Error("Sync operation failed",
		zap.String("run", r.id),
		zap.String("kind", string(kind)),
		zap.Int64("local_id", localID),
		zap.String("op", op),
		zap.Error(err),
	)
	r.report.fail(kind, localID, op, err)
	metrics.IncFailed(string(kind))
}
