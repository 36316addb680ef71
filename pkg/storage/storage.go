// Package storage persists the driver settings in flash using LittleFS.
// It handles atomic writes, version checking, and cleanup of temporary
// files left by interrupted writes.
package storage

import (
	"errors"
	"os"
	"path"
	"strings"

	"github.com/Crudus/L-Star/pkg/settings"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

const (
	configDir    = "/config"
	settingsFile = "/config/settings.bin"
	tempSuffix   = ".tmp"
)

// ErrNotFound is returned by Load when nothing has been saved yet; the
// caller falls back to defaults.
var ErrNotFound = errors.New("storage: no saved settings")

// Manager handles settings persistence using LittleFS.
type Manager struct {
	fs       *littlefs.LFS
	blockDev tinyfs.BlockDevice
	mounted  bool
}

// Stats provides information about storage usage.
type Stats struct {
	TotalSpace int64
	Saved      bool
}

// New initializes the storage system with the given block device. It
// mounts the filesystem, formatting first if format is true and the
// mount fails, performs boot-time cleanup and wipes settings written by
// a firmware with a different layout version.
func New(blockDev tinyfs.BlockDevice, format bool) (*Manager, error) {
	lfs := littlefs.New(blockDev)

	// Conservative cache sizing for RP2040 flash
	lfs.Configure(&littlefs.Config{
		CacheSize:     512,
		LookaheadSize: 128,
	})

	err := lfs.Mount()
	if err != nil {
		if !format {
			return nil, err
		}
		if err := lfs.Format(); err != nil {
			return nil, err
		}
		if err := lfs.Mount(); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		fs:       lfs,
		blockDev: blockDev,
		mounted:  true,
	}

	// Leftover temp files only waste space; keep operating if the
	// cleanup itself fails.
	m.bootCleanup()

	// A version mismatch wipes the saved settings. The user restores
	// them over the control channel after a firmware update.
	stale, err := m.staleVersion()
	if err == nil && stale {
		if err := m.Wipe(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Close unmounts the filesystem.
func (m *Manager) Close() error {
	if m.mounted {
		m.mounted = false
		return m.fs.Unmount()
	}
	return nil
}

// Load reads the saved settings. ErrNotFound means no settings file
// exists.
func (m *Manager) Load(cfg *settings.Settings) error {
	f, err := m.fs.Open(settingsFile)
	if err != nil {
		if isNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	defer f.Close()

	buf := make([]byte, settings.Size)
	n, err := f.Read(buf)
	if err != nil {
		return err
	}

	return cfg.UnmarshalBinary(buf[:n])
}

// Save stamps the current version and writes the settings atomically.
func (m *Manager) Save(cfg *settings.Settings) error {
	if err := m.ensureDirs(); err != nil {
		return err
	}

	cfg.Version = settings.CurrentVersion

	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}

	return m.atomicWrite(settingsFile, data)
}

// Wipe removes the saved settings. Wiping when nothing is saved is not
// an error.
func (m *Manager) Wipe() error {
	err := m.fs.Remove(settingsFile)
	if err != nil && isNotExist(err) {
		return nil
	}
	return err
}

// Saved reports whether a settings file exists.
func (m *Manager) Saved() bool {
	f, err := m.fs.Open(settingsFile)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// GetStats returns storage statistics.
func (m *Manager) GetStats() *Stats {
	return &Stats{
		TotalSpace: m.blockDev.Size(),
		Saved:      m.Saved(),
	}
}

// staleVersion reports whether the saved file carries a different
// layout version. A missing file is first boot, not a mismatch.
func (m *Manager) staleVersion() (bool, error) {
	var cfg settings.Settings
	if err := m.Load(&cfg); err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	return cfg.Version != settings.CurrentVersion, nil
}

// bootCleanup removes temporary files left over from interrupted
// writes.
func (m *Manager) bootCleanup() error {
	entries, err := m.readDir(configDir)
	if err != nil {
		// Config dir might not exist yet
		if isNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, tempSuffix) {
			m.fs.Remove(path.Join(configDir, name))
		}
	}

	return nil
}

// readDir reads the directory entries at the given path.
func (m *Manager) readDir(dirPath string) ([]os.FileInfo, error) {
	f, err := m.fs.Open(dirPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !f.IsDir() {
		return nil, errors.New("not a directory")
	}

	return f.Readdir(-1)
}

// ensureDirs creates the config directory if it doesn't exist.
func (m *Manager) ensureDirs() error {
	if err := m.fs.Mkdir(configDir, 0755); err != nil && !isExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes data to a temporary file, syncs it, then renames.
// The settings file is never left in a partially written state.
func (m *Manager) atomicWrite(filepath string, data []byte) error {
	tempPath := filepath + tempSuffix

	// Remove temp file if it exists (from an interrupted write)
	m.fs.Remove(tempPath)

	f, err := m.fs.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		m.fs.Remove(tempPath)
		return err
	}

	// Sync ensures data hits flash before the rename
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			f.Close()
			m.fs.Remove(tempPath)
			return err
		}
	}

	if err := f.Close(); err != nil {
		m.fs.Remove(tempPath)
		return err
	}

	// LittleFS rename doesn't replace, remove the target first
	m.fs.Remove(filepath)

	if err := m.fs.Rename(tempPath, filepath); err != nil {
		m.fs.Remove(tempPath)
		return err
	}

	return nil
}

// isExist checks if an error is "already exists". LittleFS errors don't
// always match os.IsExist, so check the message too.
func isExist(err error) bool {
	if err == nil {
		return false
	}
	if os.IsExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

// isNotExist checks if an error is "does not exist", including the
// LittleFS spelling.
func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "No directory entry")
}
