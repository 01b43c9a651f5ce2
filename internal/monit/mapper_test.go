package monit

import (
	"os"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/monitoring/internal/model"
)

func loadReport(t *testing.T) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile("testdata/report.json")
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, sonic.Unmarshal(data, &report))
	return report
}

func services(t *testing.T) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, s := range loadReport(t)["servicelist"].([]interface{}) {
		out = append(out, s.(map[string]interface{}))
	}
	return out
}

func serviceNamed(t *testing.T, name string) map[string]interface{} {
	t.Helper()
	for _, s := range services(t) {
		if s["name"] == name {
			return s
		}
	}
	t.Fatalf("no service %q in fixture", name)
	return nil
}

func TestMapAllTypesProducesFlatRows(t *testing.T) {
	seen := make(map[model.ServiceType]bool)
	for _, raw := range services(t) {
		rec, err := DecodeService(raw)
		if err != nil {
			continue
		}
		mapped, err := Map(rec)
		require.NoError(t, err)
		seen[rec.Kind()] = true

		assert.Equal(t, rec.Kind().Table(), mapped.Table)
		rows := append([]map[string]interface{}{mapped.Row}, mapped.Ports...)
		rows = append(rows, mapped.ICMP...)
		for _, r := range rows {
			assert.NotContains(t, r, "group")
			assert.NotContains(t, r, "collected_usec")
			for k, v := range r {
				switch v.(type) {
				case map[string]interface{}, []interface{}, []map[string]interface{}:
					t.Errorf("%s: column %s holds nested value %v", mapped.Table, k, v)
				}
			}
		}
		assert.Equal(t, raw["group"], mapped.Row["groupname"])
	}
	assert.Len(t, seen, 6)
}

func TestMapSystemFlattensNestedSections(t *testing.T) {
	rec, err := DecodeService(serviceNamed(t, "web1.example.com"))
	require.NoError(t, err)
	mapped, err := Map(rec)
	require.NoError(t, err)

	assert.Equal(t, "system_service", mapped.Table)
	assert.Equal(t, 0.12, mapped.Row["load_avg01"])
	assert.Equal(t, 0.31, mapped.Row["load_avg15"])
	assert.Equal(t, 2.5, mapped.Row["cpu_user"])
	assert.Equal(t, 0.3, mapped.Row["cpu_wait"])
	assert.Equal(t, 41.2, mapped.Row["memory_percent"])
	assert.Equal(t, 3315392.0, mapped.Row["memory_kilobyte"])
	assert.Equal(t, 5, mapped.Row["type"])
	assert.NotContains(t, mapped.Row, "system")
	assert.NotContains(t, mapped.Row, "status_hint")
}

func TestMapProcessFlattensCPUAndMemory(t *testing.T) {
	rec, err := DecodeService(serviceNamed(t, "sshd"))
	require.NoError(t, err)
	mapped, err := Map(rec)
	require.NoError(t, err)

	assert.Equal(t, 812, mapped.Row["pid"])
	assert.Equal(t, 0.1, mapped.Row["cpu_percenttotal"])
	assert.Equal(t, 22000.0, mapped.Row["memory_kilobytetotal"])
	assert.Equal(t, int64(1700000100), mapped.Row["collected_sec"])
}

func TestMapFilesystemWithoutInode(t *testing.T) {
	raw := serviceNamed(t, "rootfs")
	delete(raw, "inode")

	rec, err := DecodeService(raw)
	require.NoError(t, err)
	mapped, err := Map(rec)
	require.NoError(t, err)

	assert.Equal(t, 52.3, mapped.Row["block_percent"])
	assert.Equal(t, 19580.0, mapped.Row["block_total"])
	for k := range mapped.Row {
		assert.NotRegexp(t, "^inode_", k)
	}
}

func TestDecodeFilesystemRequiresBlock(t *testing.T) {
	raw := serviceNamed(t, "rootfs")
	delete(raw, "block")

	_, err := DecodeService(raw)
	assert.Error(t, err)
}

func TestMapHostEmitsSatellites(t *testing.T) {
	rec, err := DecodeService(serviceNamed(t, "gateway"))
	require.NoError(t, err)
	mapped, err := Map(rec)
	require.NoError(t, err)

	require.Len(t, mapped.Ports, 2)
	require.Len(t, mapped.ICMP, 1)
	assert.Equal(t, 22, mapped.Ports[0]["portnumber"])
	assert.Equal(t, "SSH", mapped.Ports[0]["protocol"])
	assert.Equal(t, "Echo Request", mapped.ICMP[0]["type"])
	assert.NotContains(t, mapped.Row, "portlist")
	assert.NotContains(t, mapped.Row, "icmplist")
}

func TestDecodeSkipsUnmonitored(t *testing.T) {
	_, err := DecodeService(serviceNamed(t, "cron"))
	assert.True(t, errors.Is(err, ErrNotMonitored))

	tests := []struct {
		name    string
		monitor interface{}
		want    bool
	}{
		{"missing", nil, false},
		{"zero", 0.0, false},
		{"false", false, false},
		{"empty string", "", false},
		{"one", 1.0, true},
		{"two", 2.0, true},
		{"true", true, true},
		{"non-empty string", "yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]interface{}{}
			if tt.monitor != nil {
				raw["monitor"] = tt.monitor
			}
			assert.Equal(t, tt.want, Monitored(raw))
		})
	}
}

func TestServiceTypeRejectsUnknownCodes(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]interface{}
	}{
		{"missing", map[string]interface{}{}},
		{"null", map[string]interface{}{"type": nil}},
		{"too large", map[string]interface{}{"type": 6.0}},
		{"negative", map[string]interface{}{"type": -1.0}},
		{"not a number", map[string]interface{}{"type": "socket"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ServiceType(tt.raw)
			assert.True(t, errors.Is(err, ErrUnknownServiceType))

			_, err = DecodeService(tt.raw)
			assert.True(t, errors.Is(err, ErrUnknownServiceType))
		})
	}

	st, err := ServiceType(map[string]interface{}{"type": "4"})
	require.NoError(t, err)
	assert.Equal(t, model.ServiceHost, st)
}

func TestMapServer(t *testing.T) {
	srv, err := DecodeServer(loadReport(t)["monit"].(map[string]interface{}))
	require.NoError(t, err)

	r := MapServer(srv)
	assert.Equal(t, "6f2a9c1e0b7d4e5f", r["monitid"])
	assert.NotContains(t, r, "id")
	assert.Equal(t, "web1.example.com", r["localhostname"])
	assert.Equal(t, "Linux", r["platform_name"])
	assert.Equal(t, int64(4), r["platform_cpu"])
	assert.Equal(t, "8046892", r["platform_memory"])
	assert.Equal(t, "127.0.0.1", r["address"])
	assert.Equal(t, int64(2812), r["port"])
	for k, v := range r {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			t.Errorf("column %s holds nested value", k)
		}
	}
}

func TestDecodeServerPlatformFallback(t *testing.T) {
	monit := map[string]interface{}{
		"server":   map[string]interface{}{"id": "x", "localhostname": "h"},
		"platform": map[string]interface{}{"name": "FreeBSD"},
	}
	srv, err := DecodeServer(monit)
	require.NoError(t, err)
	assert.Equal(t, "FreeBSD", MapServer(srv)["platform_name"])

	_, err = DecodeServer(map[string]interface{}{"server": map[string]interface{}{"localhostname": "h"}})
	assert.Error(t, err)
	_, err = DecodeServer(map[string]interface{}{})
	assert.Error(t, err)
}

func TestMapEvent(t *testing.T) {
	evt, err := DecodeEvent(loadReport(t)["event"].(map[string]interface{}))
	require.NoError(t, err)
	assert.Equal(t, "sshd", evt.Service)
	assert.Equal(t, model.ServiceProcess, evt.Type)

	r := MapEvent(evt, 42)
	assert.Equal(t, int64(42), r["service_id"])
	assert.Equal(t, 3, r["type"])
	assert.Equal(t, 3, r["service_type"])
	assert.Equal(t, "net", r["groupname"])
	assert.Equal(t, "process is not running", r["message"])
	for _, k := range []string{"id", "service", "group", "collected_usec"} {
		assert.NotContains(t, r, k)
	}
}
