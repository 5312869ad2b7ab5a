package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"espadl/pkg/logger"

	"github.com/google/uuid"
)

const recordVersion = 1

// Record summarizes the most recent run for one account
type Record struct {
	RunID      string    `json:"run_id"`
	Email      string    `json:"email"`
	OrderID    string    `json:"order_id"`
	Host       string    `json:"host"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Downloaded int       `json:"downloaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Aborted    string    `json:"aborted,omitempty"`
	Version    int       `json:"version"`
}

// Manager reads and writes the history record of one account
type Manager struct {
	path   string
	logger logger.Logger
}

// NewManager creates a manager for email. An empty dir selects the
// platform data directory.
func NewManager(dir, email string, log logger.Logger) (*Manager, error) {
	if dir == "" {
		dataDir, err := DataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "history")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Manager{
		path:   filepath.Join(dir, fileName(email)),
		logger: log,
	}, nil
}

// Path returns the record file location
func (m *Manager) Path() string {
	return m.path
}

// Begin starts a new record with a fresh run id
func (m *Manager) Begin(email, orderID, host string) *Record {
	return &Record{
		RunID:     uuid.NewString(),
		Email:     email,
		OrderID:   orderID,
		Host:      host,
		StartedAt: time.Now(),
		Version:   recordVersion,
	}
}

// Load returns the last record, or nil when none exists
func (m *Manager) Load() (*Record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return &rec, nil
}

// Save finishes rec and replaces the stored record atomically
func (m *Manager) Save(rec *Record) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	tempPath := m.path + ".tmp"
	if err := os.WriteFile(tempPath, append(data, '\n'), 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace history: %w", err)
	}

	m.logger.DebugWithFields("History saved", map[string]interface{}{
		"run_id":     rec.RunID,
		"downloaded": rec.Downloaded,
		"failed":     rec.Failed,
	})
	return nil
}

// SinceLastRun reports how long ago the previous run started. ok is false
// when there is no usable previous record.
func (m *Manager) SinceLastRun(now time.Time) (elapsed time.Duration, ok bool) {
	rec, err := m.Load()
	if err != nil {
		m.logger.WithError(err).Warn("Ignoring unreadable history")
		return 0, false
	}
	if rec == nil || rec.StartedAt.IsZero() {
		return 0, false
	}
	return now.Sub(rec.StartedAt), true
}

// TooSoon reports whether the previous run started less than minInterval ago
func (m *Manager) TooSoon(now time.Time, minInterval time.Duration) (time.Duration, bool) {
	elapsed, ok := m.SinceLastRun(now)
	if !ok || minInterval <= 0 {
		return elapsed, false
	}
	return elapsed, elapsed < minInterval
}

// Delete removes the record
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

func fileName(email string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.ToLower(strings.TrimSpace(email)))
	if safe == "" {
		safe = "default"
	}
	return safe + ".json"
}

// DataDirectory returns the appropriate data directory for the current OS
func DataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "espadl")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "espadl")
	default:
		// Use XDG_DATA_HOME if set, otherwise ~/.local/share
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "espadl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "espadl")
		}
	}

	return dataDir, nil
}
