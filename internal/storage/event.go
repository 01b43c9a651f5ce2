package storage

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/model"
)

const eventTable = "event"

var eventColumns = []string{
	"id", "service_id", "type", "collected_sec",
	"COALESCE(state, 0)", "COALESCE(action, 0)",
	"message", "COALESCE(groupname, '')",
}

// EventStorage handles event persistence.
type EventStorage struct {
	db *DB
}

// NewEventStorage creates a new event storage handler.
func NewEventStorage(db *DB) *EventStorage {
	return &EventStorage{db: db}
}

// Insert stores one event row and returns its id.
func (s *EventStorage) Insert(ctx context.Context, row map[string]interface{}) (int64, error) {
	return insertRow(ctx, s.db, eventTable, row)
}

// Range returns events collected between since and until inclusive (unix
// seconds) whose type is in types, oldest first. An empty types matches
// nothing.
func (s *EventStorage) Range(ctx context.Context, since, until int64, types []model.ServiceType) ([]model.Event, error) {
	if len(types) == 0 {
		return nil, nil
	}
	codes := make([]int, len(types))
	for i, t := range types {
		codes[i] = int(t)
	}

	q := sq.Select(eventColumns...).From(eventTable).
		Where(sq.GtOrEq{"collected_sec": since}).
		Where(sq.LtOrEq{"collected_sec": until}).
		Where(sq.Eq{"type": codes}).
		OrderBy("collected_sec", "id")
	return s.query(ctx, q)
}

// Recent returns the newest events, newest first.
func (s *EventStorage) Recent(ctx context.Context, limit uint64) ([]model.Event, error) {
	q := sq.Select(eventColumns...).From(eventTable).
		OrderBy("collected_sec DESC", "id DESC").Limit(limit)
	return s.query(ctx, q)
}

func (s *EventStorage) query(ctx context.Context, q sq.SelectBuilder) ([]model.Event, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build event query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.ServiceID, &e.Type, &e.CollectedSec,
			&e.State, &e.Action, &e.Message, &e.GroupName); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "failed to iterate events")
}

// Count returns the number of stored events.
func (s *EventStorage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event").Scan(&n)
	return n, errors.Wrap(err, "failed to count events")
}

// CountByType returns event counts per service type in a time window.
func (s *EventStorage) CountByType(ctx context.Context, since, until int64) (map[model.ServiceType]int, error) {
	query, args, err := sq.Select("type", "COUNT(*)").From(eventTable).
		Where(sq.GtOrEq{"collected_sec": since}).
		Where(sq.LtOrEq{"collected_sec": until}).
		GroupBy("type").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build event count")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count events by type")
	}
	defer rows.Close()

	counts := make(map[model.ServiceType]int)
	for rows.Next() {
		var t model.ServiceType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan event count")
		}
		counts[t] = n
	}
	return counts, errors.Wrap(rows.Err(), "failed to iterate event counts")
}

// Timeline returns events in a window resolved to their service row and
// monit instance. Entries whose service or instance is gone carry the
// author monit@unknown.
func (s *EventStorage) Timeline(ctx context.Context, since, until int64, types []model.ServiceType) ([]model.TimelineEntry, error) {
	events, err := s.Range(ctx, since, until, types)
	if err != nil {
		return nil, err
	}

	services := NewServiceStorage(s.db)
	monits := NewMonitStorage(s.db)
	instances := make(map[int64]*model.MonitInstance)

	entries := make([]model.TimelineEntry, 0, len(events))
	for _, e := range events {
		entry := model.TimelineEntry{Event: e, Author: "monit@unknown"}

		svc, err := services.Get(ctx, e.Type, e.ServiceID)
		if err != nil {
			return nil, err
		}
		if svc == nil {
			s.db.log.Warn("No service entry with id '%d' found while rendering event '%d'", e.ServiceID, e.ID)
			entries = append(entries, entry)
			continue
		}
		entry.Service = svc

		inst, ok := instances[svc.MonitID]
		if !ok {
			if inst, err = monits.Get(ctx, svc.MonitID); err != nil {
				return nil, err
			}
			instances[svc.MonitID] = inst
		}
		if inst == nil {
			s.db.log.Warn("No monit entry with id '%d' found while rendering event '%d'", svc.MonitID, e.ID)
		} else {
			entry.Instance = inst
			entry.Author = "monit@" + inst.LocalHostname
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
