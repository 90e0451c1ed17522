package admin

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"smtparts/internal/response"
)

// BackupInfo describes one backup file.
type BackupInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) backupDir() string {
	if h.BackupDir == "" {
		return "backups"
	}
	return h.BackupDir
}

// validBackupName rejects anything that could escape the backup directory.
func validBackupName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..") && strings.HasSuffix(name, ".db")
}

// PerformBackup snapshots the live database with VACUUM INTO and returns
// the backup filename.
func (h *Handler) PerformBackup() (string, error) {
	dir := h.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("smtparts-%s.db", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		name = fmt.Sprintf("smtparts-%s.db", time.Now().Format("20060102-150405.000"))
		path = filepath.Join(dir, name)
	}
	if _, err := h.DB.Exec("VACUUM INTO ?", path); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return name, nil
}

// ListBackups returns backups newest first.
func (h *Handler) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(h.backupDir())
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	backups := []BackupInfo{}
	for _, e := range entries {
		if e.IsDir() || !validBackupName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  e.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime().Format("2006-01-02 15:04:05"),
		})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Filename > backups[j].Filename })
	return backups, nil
}

// CreateBackup handles POST /api/v1/backups.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	name, err := h.PerformBackup()
	if err != nil {
		response.Err(w, fmt.Sprintf("backup failed: %v", err), 500)
		return
	}
	response.Created(w, map[string]string{"filename": name})
}

// ListBackupsHandler handles GET /api/v1/backups.
func (h *Handler) ListBackupsHandler(w http.ResponseWriter, r *http.Request) {
	backups, err := h.ListBackups()
	if err != nil {
		response.Err(w, fmt.Sprintf("failed to list backups: %v", err), 500)
		return
	}
	response.JSON(w, backups)
}

// DeleteBackup handles DELETE /api/v1/backups/{filename}.
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request, filename string) {
	if !validBackupName(filename) {
		response.Err(w, "invalid filename", 400)
		return
	}
	if err := os.Remove(filepath.Join(h.backupDir(), filename)); err != nil {
		if os.IsNotExist(err) {
			response.Err(w, "backup not found", 404)
		} else {
			response.Err(w, fmt.Sprintf("failed to delete: %v", err), 500)
		}
		return
	}
	response.JSON(w, map[string]string{"status": "deleted"})
}

// DownloadBackup handles GET /api/v1/backups/{filename}.
func (h *Handler) DownloadBackup(w http.ResponseWriter, r *http.Request, filename string) {
	if !validBackupName(filename) {
		response.Err(w, "invalid filename", 400)
		return
	}
	f, err := os.Open(filepath.Join(h.backupDir(), filename))
	if err != nil {
		if os.IsNotExist(err) {
			response.Err(w, "backup not found", 404)
		} else {
			response.Err(w, "failed to open backup", 500)
		}
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, filename, info.ModTime(), f)
}
