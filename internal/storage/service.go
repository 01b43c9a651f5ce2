package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/model"
)

// ServiceStorage handles service report persistence across the six
// service tables and the host satellites.
type ServiceStorage struct {
	db *DB
}

// NewServiceStorage creates a new service storage handler.
func NewServiceStorage(db *DB) *ServiceStorage {
	return &ServiceStorage{db: db}
}

// Insert stores one mapped service report for the given monit instance.
// Host satellites are written in the same transaction with host_id set to
// the new row id.
func (s *ServiceStorage) Insert(ctx context.Context, monitID int64, svc *model.MappedService) (int64, error) {
	if !knownTable(svc.Table) {
		return 0, errors.Errorf("unknown service table %q", svc.Table)
	}

	row := make(map[string]interface{}, len(svc.Row)+1)
	for k, v := range svc.Row {
		row[k] = v
	}
	row["monit_id"] = monitID

	var id int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if id, err = insertRow(ctx, tx, svc.Table, row); err != nil {
			return err
		}
		for _, p := range svc.Ports {
			if _, err := insertRow(ctx, tx, "host_port", withHostID(p, id)); err != nil {
				return err
			}
		}
		for _, p := range svc.ICMP {
			if _, err := insertRow(ctx, tx, "host_icmp", withHostID(p, id)); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

func withHostID(row map[string]interface{}, hostID int64) map[string]interface{} {
	out := make(map[string]interface{}, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	out["host_id"] = hostID
	return out
}

func insertRow(ctx context.Context, ex execer, table string, row map[string]interface{}) (int64, error) {
	query, args, err := sq.Insert(table).SetMap(row).ToSql()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to build insert into %s", table)
	}
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert into %s", table)
	}
	id, err := result.LastInsertId()
	return id, errors.Wrap(err, "failed to get last insert ID")
}

// FindLatestByName returns the id of the most recent row named name in the
// table of the given service type.
func (s *ServiceStorage) FindLatestByName(ctx context.Context, st model.ServiceType, name string) (int64, bool, error) {
	if !st.Valid() {
		return 0, false, errors.Errorf("unknown service type %d", st)
	}
	query, args, err := sq.Select("id").From(st.Table()).
		Where(sq.Eq{"name": name}).OrderBy("id DESC").Limit(1).ToSql()
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to build service lookup")
	}

	var id int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to look up %s service %q", st, name)
	}
	return id, true, nil
}

func serviceColumns(st model.ServiceType) []string {
	return []string{
		"id", "monit_id",
		fmt.Sprintf("COALESCE(type, %d)", int(st)),
		"name", "status", "monitor", "collected_sec",
		"COALESCE(groupname, '')",
		"COALESCE(status_message, '')",
	}
}

func scanService(row scanner) (*model.ServiceRow, error) {
	var r model.ServiceRow
	err := row.Scan(&r.ID, &r.MonitID, &r.Type, &r.Name, &r.Status, &r.Monitor,
		&r.CollectedSec, &r.GroupName, &r.StatusMessage)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan service row")
	}
	return &r, nil
}

// Get returns the service row with the given id, or nil if none exists.
func (s *ServiceStorage) Get(ctx context.Context, st model.ServiceType, id int64) (*model.ServiceRow, error) {
	if !st.Valid() {
		return nil, nil
	}
	query, args, err := sq.Select(serviceColumns(st)...).From(st.Table()).
		Where(sq.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build service query")
	}
	r, err := scanService(s.db.QueryRowContext(ctx, query, args...))
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// Latest returns the most recent row per service name of one monit
// instance, across all service types.
func (s *ServiceStorage) Latest(ctx context.Context, monitID int64) ([]model.ServiceRow, error) {
	var out []model.ServiceRow
	for _, st := range model.ServiceTypes() {
		latest := sq.Select("MAX(id)").From(st.Table()).
			Where(sq.Eq{"monit_id": monitID}).GroupBy("name")
		sub, subArgs, err := latest.ToSql()
		if err != nil {
			return nil, errors.Wrap(err, "failed to build latest subquery")
		}

		query, args, err := sq.Select(serviceColumns(st)...).From(st.Table()).
			Where("id IN ("+sub+")", subArgs...).OrderBy("name").ToSql()
		if err != nil {
			return nil, errors.Wrap(err, "failed to build latest query")
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to query %s", st.Table())
		}
		for rows.Next() {
			r, err := scanService(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, *r)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to iterate %s", st.Table())
		}
	}
	return out, nil
}

// Count returns the number of rows in the table of the given type.
func (s *ServiceStorage) Count(ctx context.Context, st model.ServiceType) (int, error) {
	if !st.Valid() {
		return 0, errors.Errorf("unknown service type %d", st)
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+st.Table()).Scan(&n)
	return n, errors.Wrapf(err, "failed to count %s", st.Table())
}

// Ports returns the port tests recorded for a host row.
func (s *ServiceStorage) Ports(ctx context.Context, hostID int64) ([]model.HostPort, error) {
	query, args, err := sq.Select("id", "host_id", "type", "responsetime", "portnumber",
		"request", "hostname", "protocol").
		From("host_port").Where(sq.Eq{"host_id": hostID}).OrderBy("id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build port query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query host ports")
	}
	defer rows.Close()

	var ports []model.HostPort
	for rows.Next() {
		var p model.HostPort
		if err := rows.Scan(&p.ID, &p.HostID, &p.Type, &p.ResponseTime, &p.PortNumber,
			&p.Request, &p.Hostname, &p.Protocol); err != nil {
			return nil, errors.Wrap(err, "failed to scan host port")
		}
		ports = append(ports, p)
	}
	return ports, errors.Wrap(rows.Err(), "failed to iterate host ports")
}

// ICMP returns the icmp tests recorded for a host row.
func (s *ServiceStorage) ICMP(ctx context.Context, hostID int64) ([]model.HostIcmp, error) {
	query, args, err := sq.Select("id", "host_id", "type", "responsetime").
		From("host_icmp").Where(sq.Eq{"host_id": hostID}).OrderBy("id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build icmp query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query host icmp")
	}
	defer rows.Close()

	var tests []model.HostIcmp
	for rows.Next() {
		var p model.HostIcmp
		if err := rows.Scan(&p.ID, &p.HostID, &p.Type, &p.ResponseTime); err != nil {
			return nil, errors.Wrap(err, "failed to scan host icmp")
		}
		tests = append(tests, p)
	}
	return tests, errors.Wrap(rows.Err(), "failed to iterate host icmp")
}

func knownTable(table string) bool {
	for _, st := range model.ServiceTypes() {
		if st.Table() == table {
			return true
		}
	}
	return false
}
