package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/observe"
)

// StoredObservation is a persisted last observation.
type StoredObservation struct {
	InstanceID int
	SessionID  string
	Action     ir.Object
	State      ir.Value
	Config     string
}

// SaveObservations writes every observation in the cache, replacing the
// stored row of each instance. Callables in the config are not persisted.
func (s *Store) SaveObservations(ctx context.Context, sessionID string, cache *observe.Cache) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save observations: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, obs := range cache.Snapshot() {
		action, err := ir.MarshalValue(obs.Action)
		if err != nil {
			return fmt.Errorf("save observations: instance %d action: %w", obs.InstanceID(), err)
		}
		state, err := ir.MarshalValue(obs.State)
		if err != nil {
			return fmt.Errorf("save observations: instance %d state: %w", obs.InstanceID(), err)
		}
		cfg := []byte("{}")
		if obs.Config != nil {
			if cfg, err = json.MarshalNoEscape(obs.Config); err != nil {
				return fmt.Errorf("save observations: instance %d config: %w", obs.InstanceID(), err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO last_observations (instance_id, session_id, action, state, config)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(instance_id) DO UPDATE SET
				session_id = excluded.session_id,
				action = excluded.action,
				state = excluded.state,
				config = excluded.config
		`, obs.InstanceID(), sessionID, string(action), string(state), string(cfg))
		if err != nil {
			return fmt.Errorf("save observations: instance %d: %w", obs.InstanceID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save observations: commit: %w", err)
	}
	return nil
}

// ReadObservation returns the stored last observation of an instance.
func (s *Store) ReadObservation(ctx context.Context, instanceID int) (StoredObservation, bool, error) {
	var (
		obs           StoredObservation
		action, state string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT instance_id, session_id, action, state, config
		FROM last_observations
		WHERE instance_id = ?
	`, instanceID).Scan(&obs.InstanceID, &obs.SessionID, &action, &state, &obs.Config)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredObservation{}, false, nil
	}
	if err != nil {
		return StoredObservation{}, false, fmt.Errorf("read observation: %w", err)
	}

	var actionObj ir.Object
	if err := actionObj.UnmarshalJSON([]byte(action)); err != nil {
		return StoredObservation{}, false, fmt.Errorf("read observation: action: %w", err)
	}
	obs.Action = actionObj
	if obs.State, err = ir.UnmarshalValue([]byte(state)); err != nil {
		return StoredObservation{}, false, fmt.Errorf("read observation: state: %w", err)
	}
	return obs, true, nil
}
