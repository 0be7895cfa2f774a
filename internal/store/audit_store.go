package store

import (
	"context"

	"inventory/internal/models"
)

// AuditStore appends to audit_logs. Rows are never updated or deleted.
type AuditStore struct {
	db DB
}

type AuditInput struct {
	UserID     *int64
	Action     string
	ObjectType string
	ObjectID   string
	Details    string
	IPAddress  string
	UserAgent  string
	Severity   string
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, input AuditInput) error {
	if tx == nil {
		tx = s.db
	}
	severity := input.Severity
	if severity == "" {
		severity = "info"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, action, object_type, object_id, details, ip_address, user_agent, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, input.UserID, input.Action, input.ObjectType, input.ObjectID, input.Details, input.IPAddress, input.UserAgent, severity)
	return err
}

// List returns newest first. An empty objectType lists every entry.
func (s *AuditStore) List(ctx context.Context, objectType string, limit, offset int) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, action, object_type, object_id, details, ip_address, user_agent, severity, created_at
		FROM audit_logs
		WHERE ($1 = '' OR object_type = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, objectType, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
