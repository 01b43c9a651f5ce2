package collector

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/peterbourgon/diskv"
	"github.com/pkg/errors"
)

// InvalidDir is the archive directory for payloads that could not be decoded.
const InvalidDir = "invalid"

var archiveName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Archive keeps raw payloads on disk, one flat diskv store per directory
// below the log dir.
type Archive struct {
	baseDir string
	now     func() time.Time

	mu     sync.Mutex
	stores map[string]*diskv.Diskv
}

// NewArchive creates an archive rooted at baseDir.
func NewArchive(baseDir string) *Archive {
	return &Archive{
		baseDir: baseDir,
		now:     time.Now,
		stores:  make(map[string]*diskv.Diskv),
	}
}

func (a *Archive) store(dir string) *diskv.Diskv {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, ok := a.stores[dir]
	if !ok {
		d = diskv.New(diskv.Options{
			BasePath:     filepath.Join(a.baseDir, dir),
			Transform:    func(s string) []string { return []string{} },
			CacheSizeMax: 0,
			PathPerm:     0755,
			FilePerm:     0644,
		})
		a.stores[dir] = d
	}
	return d
}

// ValidID reports whether id can name an archive directory.
func ValidID(id string) bool {
	return archiveName.MatchString(id) && id != InvalidDir && len(id) <= 255
}

// SaveXML stores an XML report verbatim as <id>/<unix-seconds>.xml and
// returns the file path.
func (a *Archive) SaveXML(id string, doc []byte) (string, error) {
	if !ValidID(id) {
		return "", errors.Errorf("invalid monit id %q", id)
	}
	return a.save(id, fmt.Sprintf("%d.xml", a.now().Unix()), doc)
}

// SaveInvalid stores an undecodable payload as invalid/<unix-seconds>.<suffix>.
func (a *Archive) SaveInvalid(suffix string, raw []byte) (string, error) {
	if !archiveName.MatchString(suffix) {
		suffix = "bin"
	}
	return a.save(InvalidDir, fmt.Sprintf("%d.%s", a.now().Unix(), suffix), raw)
}

func (a *Archive) save(dir, key string, data []byte) (string, error) {
	if err := a.store(dir).Write(key, data); err != nil {
		return "", errors.Wrapf(err, "failed to archive %s/%s", dir, key)
	}
	return filepath.Join(a.baseDir, dir, key), nil
}

// Read returns an archived payload.
func (a *Archive) Read(dir, key string) ([]byte, error) {
	data, err := a.store(dir).Read(key)
	return data, errors.Wrapf(err, "failed to read %s/%s", dir, key)
}

// Keys lists the archived payloads of one directory.
func (a *Archive) Keys(dir string) []string {
	var keys []string
	for k := range a.store(dir).Keys(nil) {
		keys = append(keys, k)
	}
	return keys
}
