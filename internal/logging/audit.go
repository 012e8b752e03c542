// Package logging also provides audit logging for fact-store and session
// lifecycle events, as JSON lines on disk for after-the-fact inspection.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType identifies the kind of audit event.
type AuditEventType string

const (
	AuditTripletInserted  AuditEventType = "triplet_inserted"
	AuditTripletVerified  AuditEventType = "triplet_verified"
	AuditTripletPromoted  AuditEventType = "triplet_promoted"
	AuditTripletDeleted   AuditEventType = "triplet_deleted"
	AuditConflictDetected AuditEventType = "conflict_detected"
	AuditConflictResolved AuditEventType = "conflict_resolved"
	AuditNodePruned       AuditEventType = "node_pruned"
	AuditNodeExpanded     AuditEventType = "node_expanded"
	AuditBudgetExhausted  AuditEventType = "budget_exhausted"
	AuditSessionStart     AuditEventType = "session_start"
	AuditSessionEnd       AuditEventType = "session_end"
	AuditGeneratorFallback AuditEventType = "generator_fallback"
)

// AuditEvent is a structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	SessionID  string                 `json:"session"`
	Target     string                 `json:"target"` // triplet id, node id, etc.
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes structured audit events scoped to a session.
type AuditLogger struct {
	sessionID string
}

// InitAudit initializes the audit log file under the logging workspace.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}
	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))
	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global, unscoped audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithSession creates an audit logger scoped to a session id.
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes an audit event as a JSON line.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// TripletInserted logs a new triplet entering the store.
func (a *AuditLogger) TripletInserted(id, sourceID string) {
	a.Log(AuditEvent{
		EventType: AuditTripletInserted,
		Target:    id,
		Success:   true,
		Fields:    map[string]interface{}{"source_id": sourceID},
		Message:   fmt.Sprintf("triplet %s inserted from %s", id, sourceID),
	})
}

// TripletPromoted logs a tier promotion.
func (a *AuditLogger) TripletPromoted(id, fromTier, toTier string) {
	a.Log(AuditEvent{
		EventType: AuditTripletPromoted,
		Target:    id,
		Success:   true,
		Fields:    map[string]interface{}{"from": fromTier, "to": toTier},
		Message:   fmt.Sprintf("triplet %s promoted %s -> %s", id, fromTier, toTier),
	})
}

// TripletDeleted logs a triplet removal (typically a conflict loser).
func (a *AuditLogger) TripletDeleted(id, reason string) {
	a.Log(AuditEvent{
		EventType: AuditTripletDeleted,
		Target:    id,
		Success:   true,
		Fields:    map[string]interface{}{"reason": reason},
		Message:   fmt.Sprintf("triplet %s deleted: %s", id, reason),
	})
}

// ConflictResolved logs a conflict resolution decision.
func (a *AuditLogger) ConflictResolved(winnerID, loserID, strategy string) {
	a.Log(AuditEvent{
		EventType: AuditConflictResolved,
		Target:    winnerID,
		Success:   true,
		Fields:    map[string]interface{}{"loser": loserID, "strategy": strategy},
		Message:   fmt.Sprintf("conflict resolved: %s kept over %s via %s", winnerID, loserID, strategy),
	})
}

// NodePruned logs a tree node being pruned.
func (a *AuditLogger) NodePruned(nodeID, reason string) {
	a.Log(AuditEvent{
		EventType: AuditNodePruned,
		Target:    nodeID,
		Success:   true,
		Fields:    map[string]interface{}{"reason": reason},
		Message:   fmt.Sprintf("node %s pruned: %s", nodeID, reason),
	})
}

// BudgetExhausted logs a node or session budget exhaustion event.
func (a *AuditLogger) BudgetExhausted(scopeID string, sessionLevel bool) {
	a.Log(AuditEvent{
		EventType: AuditBudgetExhausted,
		Target:    scopeID,
		Success:   true,
		Fields:    map[string]interface{}{"session_level": sessionLevel},
		Message:   fmt.Sprintf("budget exhausted for %s (session=%v)", scopeID, sessionLevel),
	})
}

// SessionStart logs session start.
func (a *AuditLogger) SessionStart(sessionID string) {
	a.Log(AuditEvent{EventType: AuditSessionStart, SessionID: sessionID, Success: true, Message: "session started"})
}

// SessionEnd logs session end.
func (a *AuditLogger) SessionEnd(sessionID string, iterations int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditSessionEnd,
		SessionID:  sessionID,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"iterations": iterations},
		Message:    fmt.Sprintf("session ended after %d iterations (%dms)", iterations, durationMs),
	})
}

// GeneratorFallback logs a generator call that failed and fell back to a neutral result.
func (a *AuditLogger) GeneratorFallback(capability, reason string) {
	a.Log(AuditEvent{
		EventType: AuditGeneratorFallback,
		Target:    capability,
		Success:   false,
		Error:     reason,
		Message:   fmt.Sprintf("generator fallback for %s: %s", capability, reason),
	})
}
