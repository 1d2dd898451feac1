package audit

import (
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"stockwatch/internal/database"
	"stockwatch/internal/models"
	"stockwatch/internal/websocket"
)

// Action constants.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionExport   = "EXPORT"
	ActionLogin    = "LOGIN"
	ActionLogout   = "LOGOUT"
	ActionRestock  = "RESTOCK"
	ActionIssue    = "ISSUE_LINK"
	ActionGenerate = "GENERATE"
	ActionSend     = "SEND"
	ActionLicense  = "LICENSE"
)

// Entry is one audit record to write.
type Entry struct {
	Username  string
	Action    string
	Module    string
	RecordID  string
	Summary   string
	IPAddress string
}

// Log writes e to audit_log and pushes it to dashboard clients. Failures are
// logged and otherwise ignored.
func Log(db *sql.DB, hub *websocket.Hub, e Entry) {
	if e.Username == "" {
		e.Username = "system"
	}
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary, ip_address, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.Username, e.Action, e.Module, e.RecordID, e.Summary, e.IPAddress, database.FormatTime(time.Now()))
	if err != nil {
		log.Printf("audit: log error: %v", err)
	}
	hub.Broadcast(websocket.Event{
		Type: websocket.EventAudit,
		Data: map[string]string{"module": e.Module, "action": e.Action, "record_id": e.RecordID},
	})
}

// LogAudit is the short form used by handlers.
func LogAudit(db *sql.DB, hub *websocket.Hub, username, action, module, recordID, summary string) {
	Log(db, hub, Entry{Username: username, Action: action, Module: module, RecordID: recordID, Summary: summary})
}

// List returns recent audit entries, newest first, optionally filtered by module.
func List(db *sql.DB, module string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q := "SELECT id, username, action, module, record_id, COALESCE(summary,''), COALESCE(ip_address,''), COALESCE(created_at,'') FROM audit_log"
	var args []any
	if module != "" {
		q += " WHERE module=?"
		args = append(args, module)
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// CleanupOldAuditLogs deletes audit log entries older than retentionDays.
func CleanupOldAuditLogs(db *sql.DB, retentionDays int) (int64, error) {
	cutoff := database.FormatTime(time.Now().AddDate(0, 0, -retentionDays))
	result, err := db.Exec("DELETE FROM audit_log WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetClientIP extracts the real client IP from the request (handles proxies).
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
