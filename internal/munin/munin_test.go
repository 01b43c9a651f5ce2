package munin

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/monitoring/internal/util"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/datafile")
	require.NoError(t, err)
	return data
}

func TestParse(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	stats, err := Parse(bytes.NewReader(readFixture(t)), util.NewLoggerFromCore(core))
	require.NoError(t, err)

	assert.Equal(t, "2.0.57", stats.Version)
	assert.Equal(t, []string{"example.com", "other.org"}, stats.DomainNames())
	assert.Equal(t, []string{"web1.example.com", "web2.example.com"}, stats.Hosts("example.com"))

	// The first entry of each node is kept.
	web1 := stats.Domains["example.com"]["web1.example.com"]
	require.Len(t, web1, 4)
	assert.Equal(t, Entry{Category: "cpu", Label: "graph_title", Value: "CPU usage"}, web1[0])

	assert.Equal(t, []string{"cpu", "load"}, stats.Categories("example.com", "web1.example.com"))
	assert.Equal(t, []map[string]string{
		{"graph_title": "CPU usage"},
		{"user.value": "12"},
		{"system.value": "3"},
	}, stats.Details("example.com", "web1.example.com", "cpu"))

	assert.Len(t, stats.Domains["example.com"]["web2.example.com"], 1)
	assert.Len(t, stats.Domains["other.org"]["db1.other.org"], 1)
	assert.Equal(t, 3, logs.FilterMessageSnippet("Failed to convert line").Len())

	assert.Empty(t, stats.Hosts("missing"))
	assert.Empty(t, stats.Categories("example.com", "missing"))
	assert.NotNil(t, stats.Details("example.com", "missing", "cpu"))
}

func TestParseSkipsMalformedLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"no semicolon", "example.com web1:cpu.user 1"},
		{"no colon", "example.com;web1 cpu.user 1"},
		{"no dot", "example.com;web1:cpu user 1"},
		{"no value", "example.com;web1:cpu.user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "version 1.4\n" + tt.line + "\nexample.com;web1:load.load 0.1\n"
			stats, err := Parse(strings.NewReader(data), nil)
			require.NoError(t, err)
			assert.Equal(t, []Entry{{Category: "load", Label: "load", Value: "0.1"}},
				stats.Domains["example.com"]["web1"])
		})
	}
}

type countingOpener struct {
	mu    sync.Mutex
	data  []byte
	reads int
}

func (o *countingOpener) open() (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads++
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (o *countingOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reads
}

func TestCacheTTL(t *testing.T) {
	ctx := context.Background()
	opener := &countingOpener{data: readFixture(t)}
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	cache := NewCache("unused", WithOpener(opener.open), WithClock(clock), WithLogger(util.NopLogger()))

	first, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, opener.count())

	now = now.Add(14 * time.Second)
	second, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, opener.count())
	assert.Same(t, first, second)

	now = now.Add(2 * time.Second)
	third, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, opener.count())
	assert.Equal(t, first, third)

	cache.Invalidate()
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, opener.count())
}

func TestCacheConcurrentGet(t *testing.T) {
	opener := &countingOpener{data: readFixture(t)}
	cache := NewCache("unused", WithOpener(opener.open), WithLogger(util.NopLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := cache.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "2.0.57", stats.Version)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, opener.count(), 16)
	assert.GreaterOrEqual(t, opener.count(), 1)
}

func TestCacheOpenError(t *testing.T) {
	cache := NewCache("unused", WithOpener(func() (io.ReadCloser, error) {
		return nil, os.ErrNotExist
	}))
	_, err := cache.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	missing := NewCache("/nonexistent/datafile", WithLogger(util.NopLogger()))
	_, err = missing.Get(context.Background())
	assert.Error(t, err)
}

type fakeRunner struct {
	name string
	args []string
	out  string
	err  error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.name, f.args = name, args
	return []byte(f.out), f.err
}

func TestGrapherRender(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/www/munin/web1-cpu-day.png", []byte("png1"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/var/www/munin/web1-load-day.png", []byte("png2"), 0644))

	runner := &fakeRunner{out: "/var/www/munin/web1-cpu-day.png\n\n  /var/www/munin/web1-load-day.png  \n"}
	g := NewGrapher("/usr/share/munin/munin-graph", "/srv/htdocs/munin",
		WithFs(fs), WithRunner(runner), WithGraphLogger(util.NopLogger()))

	urls, err := g.Render(context.Background(), "web1", []string{"cpu", "load"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/chrome/site/munin/web1-cpu-day.png",
		"/chrome/site/munin/web1-load-day.png",
	}, urls)

	assert.Equal(t, "/usr/share/munin/munin-graph", runner.name)
	assert.Equal(t, []string{"--force-root", "--list-images", "--nomonth", "--noyear",
		"--host", "web1", "--service", "cpu", "--service", "load"}, runner.args)

	copied, err := afero.ReadFile(fs, "/srv/htdocs/munin/web1-load-day.png")
	require.NoError(t, err)
	assert.Equal(t, "png2", string(copied))

	f, err := g.Open("web1-cpu-day.png")
	require.NoError(t, err)
	f.Close()
	_, err = g.Open("../etc/passwd")
	assert.Error(t, err)
}

func TestGrapherRejectsOptionLikeArgs(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGrapher("/usr/share/munin/munin-graph", "/out", WithFs(afero.NewMemMapFs()), WithRunner(runner))

	_, err := g.Render(context.Background(), "--help", nil)
	assert.Error(t, err)
	_, err = g.Render(context.Background(), "web1", []string{"cpu; rm -rf /"})
	assert.Error(t, err)
	assert.Empty(t, runner.name)

	runner.err = errors.New("boom")
	_, err = g.Render(context.Background(), "web1", []string{"cpu"})
	assert.Error(t, err)

	_, err = NewGrapher("", "/out").Render(context.Background(), "web1", nil)
	assert.Error(t, err)
}
