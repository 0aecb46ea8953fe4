package runstore

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// DatabaseStats summarizes the store for the /debug/db-stats endpoint.
type DatabaseStats struct {
	Path        string       `json:"path"`
	TotalSizeMB float64      `json:"total_size_mb"`
	Tables      []TableCount `json:"tables"`
}

// TableCount is one table's row count.
type TableCount struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// AttachAdminRoutes mounts the operator surface on mux under /debug/: live
// SQL browsing over the store, a stats summary, and an on-demand backup
// download.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Recognition DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Database size and row counts", http.HandlerFunc(s.handleDBStats))
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(s.handleBackup))
}

// handleDBStats reports the database file size and the row count of every
// table the schema owns.
func (s *Store) handleDBStats(w http.ResponseWriter, r *http.Request) {
	stats := DatabaseStats{Path: s.path}

	if fi, err := os.Stat(s.path); err == nil {
		stats.TotalSizeMB = float64(fi.Size()) / (1024 * 1024)
	}

	for _, table := range []string{"training_runs", "epoch_metrics", "recognitions"} {
		var rows int
		if err := s.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&rows); err != nil {
			http.Error(w, fmt.Sprintf("Failed to count %s: %v", table, err), http.StatusInternalServerError)
			return
		}
		stats.Tables = append(stats.Tables, TableCount{Name: table, Rows: rows})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("Failed to encode db stats: %v", err)
	}
}

// handleBackup snapshots the live database with VACUUM INTO and streams the
// result back gzip-compressed. The on-disk copy is deleted once sent.
func (s *Store) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	if _, err := s.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	// Write the gzip header before streaming so an early copy failure
	// still produces a well-formed response.
	if _, err := gz.Write([]byte{}); err != nil {
		http.Error(w, fmt.Sprintf("Failed to initialize gzip writer: %v", err), http.StatusInternalServerError)
		return
	}

	if _, err := io.Copy(gz, backupFile); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
		return
	}
}
