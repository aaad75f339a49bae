package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roundabout-sync/internal/inventory"
	"roundabout-sync/internal/logger"
	"roundabout-sync/internal/remote"
	"roundabout-sync/internal/store"
)

const (
	ConflictSerialNumber = "serial_number"
	StrategySuffix       = "suffix"
)

// ConflictManager detects inventory serial numbers that already exist on the
// home base and picks a free replacement.
type ConflictManager struct {
	store   store.Store
	retries int
	suffix  func() int
}

func NewConflictManager(store store.Store, retries int) *ConflictManager {
	if retries <= 0 {
		retries = 1
	}
	return &ConflictManager{
		store:   store,
		retries: retries,
		suffix:  func() int { return rand.Intn(1000) + 1 },
	}
}

// serialTaken asks the home base whether serial is in use. The answer holds
// the matching remote records.
func serialTaken(ctx context.Context, client *remote.Client, serial string) (bool, *remote.Response, error) {
	resp, err := client.Get(ctx, "inventory/", url.Values{"serial_number": {serial}})
	if err != nil {
		return false, resp, fmt.Errorf("check serial %q: %w", serial, err)
	}
	return hasResults(resp.Body), resp, nil
}

// hasResults treats a non-empty list, or a paginated object with results, as a match.
func hasResults(body []byte) bool {
	var v any
	if err := codec.Unmarshal(body, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case map[string]any:
		if results, ok := t["results"].([]any); ok {
			return len(results) > 0
		}
		if count, ok := t["count"].(interface{ Int64() (int64, error) }); ok {
			n, _ := count.Int64()
			return n > 0
		}
		return len(t) > 0
	default:
		return false
	}
}

// ensureUniqueSerial rewrites rec's serial number when it collides with an
// existing remote item. The local row is not touched.
func (cm *ConflictManager) ensureUniqueSerial(ctx context.Context, r *run, item *inventory.Inventory, rec Record) error {
	serial := item.SerialNumber
	taken, resp, err := serialTaken(ctx, r.client, serial)
	r.report.observe(resp, err)
	if err != nil {
		return err
	}
	if !taken {
		return nil
	}

	localData, _ := codec.Marshal(map[string]string{"serial_number": serial})
	conflict := &store.Conflict{
		ID:           uuid.New().String(),
		Target:       r.target,
		Kind:         string(inventory.KindInventory),
		LocalID:      item.ID,
		LocalData:    localData,
		RemoteData:   json.RawMessage(resp.Body),
		ConflictType: ConflictSerialNumber,
		DetectedAt:   time.Now().UTC(),
	}
	if err := cm.store.CreateConflict(ctx, conflict); err != nil {
		logger.Log.Warn("Failed to record serial conflict", zap.String("serial", serial), zap.Error(err))
	}

	for attempt := 0; attempt < cm.retries; attempt++ {
		candidate := fmt.Sprintf("%s-%d", serial, cm.suffix())
		taken, resp, err := serialTaken(ctx, r.client, candidate)
		r.report.observe(resp, err)
		if err != nil {
			return err
		}
		if taken {
			continue
		}

		rec["serial_number"] = candidate
		if item.OldSerialNumber == "" {
			rec["old_serial_number"] = serial
		}
		logger.Log.Info("Renamed colliding serial number",
			zap.Int64("inventory", item.ID),
			zap.String("serial", serial),
			zap.String("sent", candidate),
		)

		resolved, _ := codec.Marshal(map[string]string{"serial_number": candidate})
		if err := cm.store.ResolveConflict(ctx, conflict.ID, StrategySuffix, resolved); err != nil {
			logger.Log.Warn("Failed to resolve serial conflict", zap.String("conflict", conflict.ID), zap.Error(err))
		}
		return nil
	}

	return fmt.Errorf("serial %q after %d attempts: %w", serial, cm.retries, ErrSerialExhausted)
}
