package munin

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/user/monitoring/internal/util"
)

// ImageURLPrefix is where copied graphs are served from.
const ImageURLPrefix = "/chrome/site/munin/"

// Runner runs an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands directly, without a shell.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, errors.Wrapf(err, "%s failed: %s", filepath.Base(name), strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Grapher renders graphs with munin-graph and publishes the images.
type Grapher struct {
	graphPath string
	outDir    string
	fs        afero.Fs
	run       Runner
	log       *util.Logger
}

// GrapherOption configures a Grapher.
type GrapherOption func(*Grapher)

// WithFs replaces the filesystem images are copied on.
func WithFs(fs afero.Fs) GrapherOption {
	return func(g *Grapher) { g.fs = fs }
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) GrapherOption {
	return func(g *Grapher) { g.run = r }
}

// WithGraphLogger sets the logger.
func WithGraphLogger(log *util.Logger) GrapherOption {
	return func(g *Grapher) { g.log = log.Named("munin-graph") }
}

// NewGrapher creates a grapher running graphPath and copying images to outDir.
func NewGrapher(graphPath, outDir string, opts ...GrapherOption) *Grapher {
	g := &Grapher{
		graphPath: graphPath,
		outDir:    outDir,
		fs:        afero.NewOsFs(),
		run:       ExecRunner{},
		log:       util.GetLogger().Named("munin-graph"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func validArg(s string) bool {
	return s != "" && !strings.HasPrefix(s, "-") && !strings.ContainsAny(s, " \t\r\n/")
}

// Render graphs the given categories of host and returns the public URLs of
// the copied images.
func (g *Grapher) Render(ctx context.Context, host string, categories []string) ([]string, error) {
	if g.graphPath == "" {
		return nil, errors.New("munin-graph is not configured")
	}
	if !validArg(host) {
		return nil, errors.Errorf("invalid host %q", host)
	}
	args := []string{"--force-root", "--list-images", "--nomonth", "--noyear", "--host", host}
	for _, c := range categories {
		if !validArg(c) {
			return nil, errors.Errorf("invalid category %q", c)
		}
		args = append(args, "--service", c)
	}

	out, err := g.run.Run(ctx, g.graphPath, args...)
	if err != nil {
		return nil, err
	}

	if err := g.fs.MkdirAll(g.outDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create graph dir")
	}

	var urls []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		pic := strings.TrimSpace(sc.Text())
		if pic == "" {
			continue
		}
		if err := g.copy(pic); err != nil {
			return nil, err
		}
		urls = append(urls, ImageURLPrefix+path.Base(filepath.ToSlash(pic)))
	}
	g.log.Debug("munin-graph listed %d images for %s", len(urls), host)
	return urls, errors.Wrap(sc.Err(), "failed to read munin-graph output")
}

func (g *Grapher) copy(src string) error {
	in, err := g.fs.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open image %s", src)
	}
	defer in.Close()

	dst := filepath.Join(g.outDir, filepath.Base(src))
	out, err := g.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return errors.Wrapf(out.Close(), "failed to close %s", dst)
}

// Open returns a published image by base name.
func (g *Grapher) Open(name string) (afero.File, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, errors.Errorf("invalid image name %q", name)
	}
	return g.fs.Open(filepath.Join(g.outDir, name))
}
