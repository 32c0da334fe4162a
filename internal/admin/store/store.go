// Package store keeps the last known listing of applications so the admin
// panel keeps working while the Upstream API is unreachable.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"intake/internal/solicitud/models"
)

// Key is the namespace under which records are persisted.
const Key = "bancamia_solicitudes"

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("not found")

// Store is the Local Fallback Store. Records keep their insertion order.
type Store interface {
	// Replace swaps the whole snapshot. Incoming records without an id keep
	// the id already stored for the same application (see carryIDs).
	Replace(ctx context.Context, records []models.Application) error
	// Append stores one record, assigning id and fechaSolicitud when missing.
	Append(ctx context.Context, record models.Application) (models.Application, error)
	List(ctx context.Context) ([]models.Application, error)
	// Delete removes and returns the record with id.
	Delete(ctx context.Context, id string) (models.Application, error)
}

// IDs hands out SOL-<unix millis> identifiers. Several ids in the same
// millisecond get a -<n> suffix.
type IDs struct {
	mu   sync.Mutex
	last int64
	seq  int
}

func (g *IDs) Next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := now.UnixMilli()
	if ms == g.last {
		g.seq++
		return fmt.Sprintf("SOL-%d-%d", ms, g.seq)
	}
	g.last, g.seq = ms, 0
	return fmt.Sprintf("SOL-%d", ms)
}

// stamp assigns an id and submission time to records that lack them.
func stamp(ids *IDs, now time.Time, records []models.Application) {
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = ids.Next(now)
		}
		if records[i].FechaSolicitud == "" {
			records[i].FechaSolicitud = now.UTC().Format(time.RFC3339Nano)
		}
	}
}

// carryIDs gives id-less incoming records the id previously stored for the
// same application, so ids stay stable across listings. A record matches on
// numeroDocumento plus fechaSolicitud, or on numeroDocumento plus email when
// the upstream sent no fechaSolicitud; the stored fechaSolicitud then carries
// over too. Each stored id is reused at most once.
func carryIDs(previous, next []models.Application) {
	type key struct{ doc, other string }
	byFecha := make(map[key]models.Application, len(previous))
	byEmail := make(map[key]models.Application, len(previous))
	for _, r := range previous {
		if r.ID == "" || r.NumeroDocumento == "" {
			continue
		}
		if k := (key{r.NumeroDocumento, r.FechaSolicitud}); r.FechaSolicitud != "" {
			if _, seen := byFecha[k]; !seen {
				byFecha[k] = r
			}
		}
		if k := (key{r.NumeroDocumento, r.Email}); r.Email != "" {
			if _, seen := byEmail[k]; !seen {
				byEmail[k] = r
			}
		}
	}

	used := make(map[string]bool)
	for i := range next {
		rec := &next[i]
		if rec.ID != "" || rec.NumeroDocumento == "" {
			continue
		}
		var (
			match models.Application
			ok    bool
		)
		if rec.FechaSolicitud != "" {
			match, ok = byFecha[key{rec.NumeroDocumento, rec.FechaSolicitud}]
		} else if rec.Email != "" {
			match, ok = byEmail[key{rec.NumeroDocumento, rec.Email}]
		}
		if !ok || used[match.ID] {
			continue
		}
		used[match.ID] = true
		rec.ID = match.ID
		if rec.FechaSolicitud == "" {
			rec.FechaSolicitud = match.FechaSolicitud
		}
	}
}
