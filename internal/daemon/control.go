package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/user/monitoring/internal/model"
)

// StatusFileName is the snapshot written by the status job.
const StatusFileName = "status.json"

// CheckRunning reports whether the pid file in dataDir names a live process.
func CheckRunning(dataDir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(dataDir, PIDFileName))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}

	// Signal 0 only checks that the process exists. EPERM means it does but
	// belongs to another user.
	if err := unix.Kill(pid, 0); err != nil && err != unix.EPERM {
		return false, 0
	}
	return true, pid
}

// SendStop asks the running daemon to shut down.
func SendStop(dataDir string) error {
	running, pid := CheckRunning(dataDir)
	if !running {
		return errors.New("daemon is not running")
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return errors.Wrapf(err, "failed to signal process %d", pid)
	}
	return nil
}

// WriteStatusFile writes the daemon status to dataDir.
func WriteStatusFile(dataDir string, status *model.DaemonStatus) error {
	data, err := sonic.ConfigStd.MarshalIndent(status, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode status")
	}

	// Write then rename so readers never see a partial file.
	path := filepath.Join(dataDir, StatusFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write status file")
	}
	return errors.Wrap(os.Rename(tmp, path), "failed to replace status file")
}

// ReadStatusFile reads the last status snapshot from dataDir.
func ReadStatusFile(dataDir string) (*model.DaemonStatus, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, StatusFileName))
	if err != nil {
		return nil, err
	}

	var status model.DaemonStatus
	if err := sonic.Unmarshal(data, &status); err != nil {
		return nil, errors.Wrap(err, "failed to decode status file")
	}
	return &status, nil
}
