package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditSeverity grades audit events.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditStatus marks whether the audited action succeeded.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// AuditLog represents a record stored in audit_logs. Writes are
// fire-and-forget: a failed audit insert never aborts the business action.
type AuditLog struct {
	UserID      string
	Username    string
	ActionType  string
	EntityType  string
	EntityID    string
	Description string
	Details     map[string]any
	Severity    AuditSeverity
	Status      AuditStatus
	BranchID    int64
	At          time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.ActionType == "" || log.EntityType == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.Severity == "" {
		log.Severity = SeverityLow
	}
	if log.Status == "" {
		log.Status = AuditStatusSuccess
	}
	detailsJSON, err := json.Marshal(log.Details)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (user_id, username, action_type, entity_type, entity_id, description, details, severity, status, branch_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, COALESCE($11, NOW()))`,
		log.UserID, log.Username, log.ActionType, log.EntityType, log.EntityID,
		log.Description, detailsJSON, log.Severity, log.Status, nullInt(log.BranchID), nullTime(log.At))
	return err
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
