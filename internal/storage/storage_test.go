package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/monitoring/internal/model"
	"github.com/user/monitoring/internal/util"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "monit.db"), Options{Logger: util.NopLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func columns(t *testing.T, db *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		require.NoError(t, rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk))
		cols[name] = true
	}
	require.NoError(t, rows.Err())
	return cols
}

// writeV1 creates a database at schema version 1 holding one monit row.
func writeV1(t *testing.T, path string, extra ...string) {
	t.Helper()
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()

	for _, stmt := range append(baseTables, extra...) {
		_, err := raw.Exec(stmt)
		require.NoError(t, err)
	}
	_, err = raw.Exec("INSERT INTO monit (db_version, localhostname, monitid) VALUES (1, 'old', 'abc')")
	require.NoError(t, err)
}

func TestOpenBootstrapsEmptyDatabase(t *testing.T) {
	db := newTestDB(t)
	assert.Equal(t, SchemaVersion, db.Version())

	for _, table := range []string{"process_service", "system_service", "filesystem_service",
		"directory_service", "file_service", "host_service"} {
		cols := columns(t, db.DB, table)
		assert.True(t, cols["type"], "%s.type", table)
		assert.True(t, cols["status_message"], "%s.status_message", table)
	}
	assert.True(t, columns(t, db.DB, "event")["service_type"])
}

func TestOpenUpgradesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monit.db")
	writeV1(t, path)

	db, err := Open(context.Background(), path, Options{Logger: util.NopLogger()})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, SchemaVersion, db.Version())
	assert.True(t, columns(t, db.DB, "host_service")["status_message"])

	var stored int
	require.NoError(t, db.QueryRow("SELECT db_version FROM monit WHERE monitid = 'abc'").Scan(&stored))
	assert.Equal(t, SchemaVersion, stored)
}

func TestOpenKeepsRunningWhenUpgradeFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monit.db")
	// The column the first migration adds already exists.
	writeV1(t, path, "ALTER TABLE process_service ADD COLUMN type INTEGER")

	core, logs := observer.New(zapcore.DebugLevel)
	db, err := Open(context.Background(), path, Options{Logger: util.NewLoggerFromCore(core)})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.Version())
	assert.Equal(t, 1, logs.FilterMessageSnippet("Database upgrade from version 1 to version 3 failed").Len())

	// Nothing from the aborted upgrade was applied.
	assert.False(t, columns(t, db.DB, "host_service")["status_message"])

	var stored int
	require.NoError(t, db.QueryRow("SELECT db_version FROM monit").Scan(&stored))
	assert.Equal(t, 1, stored)
}

func TestUpgradeRejectsUnknownStep(t *testing.T) {
	db := newTestDB(t)
	err := Upgrade(context.Background(), db.DB, 0, SchemaVersion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migration from schema version 0")
}

func TestMonitUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	monits := NewMonitStorage(db)

	id, created, err := monits.Upsert(ctx, map[string]interface{}{
		"monitid":       "abc123",
		"localhostname": "web1",
		"uptime":        int64(100),
		"platform_name": "Linux",
	})
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := monits.Upsert(ctx, map[string]interface{}{
		"monitid":       "abc123",
		"localhostname": "web1.example.com",
		"uptime":        int64(200),
		"platform_name": "Linux",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)

	n, err := monits.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inst, err := monits.GetByMonitID(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "web1.example.com", inst.LocalHostname)
	assert.Equal(t, int64(200), inst.Uptime)
	assert.Equal(t, SchemaVersion, inst.DBVersion)
	assert.Equal(t, "0 days 0:3:20", inst.UptimeFormatted)

	missing, err := monits.Get(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHostInsertWritesSatellites(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	services := NewServiceStorage(db)

	svc := &model.MappedService{
		Table: "host_service",
		Row: map[string]interface{}{
			"type": 4, "name": "gateway", "status": 0, "monitormode": 0,
			"monitor": 1, "collected_sec": int64(1700000000),
		},
		Ports: []map[string]interface{}{
			{"portnumber": 22, "protocol": "SSH"},
			{"portnumber": 80, "protocol": "HTTP"},
			{"portnumber": 443, "protocol": "HTTP"},
		},
		ICMP: []map[string]interface{}{
			{"type": "Echo Request", "responsetime": 0.002},
		},
	}

	hostID, err := services.Insert(ctx, 1, svc)
	require.NoError(t, err)

	ports, err := services.Ports(ctx, hostID)
	require.NoError(t, err)
	require.Len(t, ports, 3)
	for _, p := range ports {
		assert.Equal(t, hostID, p.HostID)
	}
	assert.Equal(t, 22, *ports[0].PortNumber)

	icmp, err := services.ICMP(ctx, hostID)
	require.NoError(t, err)
	require.Len(t, icmp, 1)
	assert.Equal(t, hostID, icmp[0].HostID)
}

func TestServiceInsertRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	services := NewServiceStorage(db)

	svc := &model.MappedService{
		Table: "host_service",
		Row: map[string]interface{}{
			"name": "gateway", "status": 0, "monitormode": 0, "monitor": 1, "collected_sec": 1,
		},
		Ports: []map[string]interface{}{{"no_such_column": 1}},
	}
	_, err := services.Insert(ctx, 1, svc)
	require.Error(t, err)

	n, err := services.Count(ctx, model.ServiceHost)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = services.Insert(ctx, 1, &model.MappedService{Table: "monit"})
	assert.Error(t, err)
}

func TestFindLatestByName(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	services := NewServiceStorage(db)

	row := func(sec int64) *model.MappedService {
		return &model.MappedService{Table: "process_service", Row: map[string]interface{}{
			"type": 3, "name": "sshd", "status": 0, "monitormode": 0, "monitor": 1,
			"collected_sec": sec, "pid": 42,
		}}
	}
	_, err := services.Insert(ctx, 1, row(1))
	require.NoError(t, err)
	latest, err := services.Insert(ctx, 1, row(2))
	require.NoError(t, err)

	id, ok, err := services.FindLatestByName(ctx, model.ServiceProcess, "sshd")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, latest, id)

	_, ok, err = services.FindLatestByName(ctx, model.ServiceFile, "sshd")
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := services.Latest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, latest, rows[0].ID)
	assert.Equal(t, model.ServiceProcess, rows[0].Type)
}

func TestEventTimeline(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	monits := NewMonitStorage(db)
	services := NewServiceStorage(db)
	events := NewEventStorage(db)

	monitID, _, err := monits.Upsert(ctx, map[string]interface{}{"monitid": "m1", "localhostname": "web1"})
	require.NoError(t, err)
	svcID, err := services.Insert(ctx, monitID, &model.MappedService{Table: "file_service", Row: map[string]interface{}{
		"type": 2, "name": "passwd", "status": 0, "monitormode": 0, "monitor": 1, "collected_sec": 10,
	}})
	require.NoError(t, err)

	for _, row := range []map[string]interface{}{
		{"service_id": svcID, "type": 2, "service_type": 2, "collected_sec": 100, "message": "checksum changed"},
		{"service_id": 999, "type": 2, "service_type": 2, "collected_sec": 200, "message": "orphan"},
		{"service_id": svcID, "type": 3, "service_type": 3, "collected_sec": 150, "message": "other type"},
		{"service_id": svcID, "type": 2, "service_type": 2, "collected_sec": 900, "message": "too late"},
	} {
		_, err := events.Insert(ctx, row)
		require.NoError(t, err)
	}

	entries, err := events.Timeline(ctx, 0, 500, []model.ServiceType{model.ServiceFile})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "checksum changed", entries[0].Event.Message)
	assert.Equal(t, "monit@web1", entries[0].Author)
	require.NotNil(t, entries[0].Service)
	assert.Equal(t, "passwd", entries[0].Service.Name)

	assert.Equal(t, "orphan", entries[1].Event.Message)
	assert.Equal(t, "monit@unknown", entries[1].Author)
	assert.Nil(t, entries[1].Service)

	none, err := events.Timeline(ctx, 0, 500, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	counts, err := events.CountByType(ctx, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.ServiceFile])
	assert.Equal(t, 1, counts[model.ServiceProcess])

	recent, err := events.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "too late", recent[0].Message)
}
