package storage

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/model"
)

const monitTable = "monit"

var monitColumns = []string{
	"id",
	"COALESCE(db_version, 1)",
	"monitid",
	"localhostname",
	"COALESCE(address, '')",
	"COALESCE(port, 0)",
	"COALESCE(ssl, 0)",
	"COALESCE(uptime, 0)",
	"COALESCE(incarnation, 0)",
	"COALESCE(version, '')",
	"COALESCE(platform_name, '')",
	"COALESCE(platform_machine, '')",
	"COALESCE(platform_version, '')",
	"COALESCE(platform_memory, '')",
	"COALESCE(platform_release, '')",
	"COALESCE(platform_cpu, 0)",
	"COALESCE(startdelay, 0)",
	"COALESCE(controlfile, '')",
	"COALESCE(poll, 0)",
}

// MonitStorage handles monit instance persistence.
type MonitStorage struct {
	db *DB
}

// NewMonitStorage creates a new monit instance storage handler.
func NewMonitStorage(db *DB) *MonitStorage {
	return &MonitStorage{db: db}
}

// Upsert inserts the instance row keyed by its monitid, or updates every
// given column of the existing row. It returns the row id and whether a
// new row was created.
func (s *MonitStorage) Upsert(ctx context.Context, row map[string]interface{}) (int64, bool, error) {
	monitID, ok := row["monitid"]
	if !ok {
		return 0, false, errors.New("monit row has no monitid")
	}

	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM monit WHERE monitid = ?", monitID).Scan(&id)
	if err != nil && err != sql.ErrNoRows {
		return 0, false, errors.Wrapf(err, "failed to look up monit %v", monitID)
	}

	if err == sql.ErrNoRows {
		values := make(map[string]interface{}, len(row)+1)
		for k, v := range row {
			values[k] = v
		}
		values["db_version"] = SchemaVersion

		query, args, err := sq.Insert(monitTable).SetMap(values).ToSql()
		if err != nil {
			return 0, false, errors.Wrap(err, "failed to build monit insert")
		}
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, false, errors.Wrapf(err, "failed to insert monit %v", monitID)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, false, errors.Wrap(err, "failed to get last insert ID")
		}
		return id, true, nil
	}

	query, args, err := sq.Update(monitTable).SetMap(row).Where(sq.Eq{"monitid": monitID}).ToSql()
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to build monit update")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, false, errors.Wrapf(err, "failed to update monit %v", monitID)
	}
	return id, false, nil
}

// List returns every known monit instance ordered by hostname.
func (s *MonitStorage) List(ctx context.Context) ([]model.MonitInstance, error) {
	query, args, err := sq.Select(monitColumns...).From(monitTable).OrderBy("localhostname", "id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build monit list")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query monit instances")
	}
	defer rows.Close()

	var instances []model.MonitInstance
	for rows.Next() {
		inst, err := scanMonit(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, *inst)
	}
	return instances, errors.Wrap(rows.Err(), "failed to iterate monit instances")
}

// Get returns the instance with the given row id, or nil if none exists.
func (s *MonitStorage) Get(ctx context.Context, id int64) (*model.MonitInstance, error) {
	return s.getBy(ctx, sq.Eq{"id": id})
}

// GetByMonitID returns the instance with the given external id, or nil.
func (s *MonitStorage) GetByMonitID(ctx context.Context, monitID string) (*model.MonitInstance, error) {
	return s.getBy(ctx, sq.Eq{"monitid": monitID})
}

func (s *MonitStorage) getBy(ctx context.Context, pred sq.Eq) (*model.MonitInstance, error) {
	query, args, err := sq.Select(monitColumns...).From(monitTable).Where(pred).Limit(1).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build monit query")
	}

	inst, err := scanMonit(s.db.QueryRowContext(ctx, query, args...))
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

// Count returns the number of known instances.
func (s *MonitStorage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM monit").Scan(&n)
	return n, errors.Wrap(err, "failed to count monit instances")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMonit(row scanner) (*model.MonitInstance, error) {
	var m model.MonitInstance
	err := row.Scan(
		&m.ID, &m.DBVersion, &m.MonitID, &m.LocalHostname,
		&m.Address, &m.Port, &m.SSL, &m.Uptime, &m.Incarnation, &m.Version,
		&m.PlatformName, &m.PlatformMachine, &m.PlatformVersion,
		&m.PlatformMemory, &m.PlatformRelease, &m.PlatformCPU,
		&m.StartDelay, &m.ControlFile, &m.Poll,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan monit instance")
	}
	m.UptimeFormatted = model.FormatUptime(m.Uptime)
	return &m, nil
}
