package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/media"
	"github.com/helmarr/helmarr/internal/routing"
)

const approvalColumns = `id, user_id, content_key, title, content_type, guids, status,
	triggered_by, reason, proposed_routing, approved_by, notes, created_at, updated_at`

// ApprovalStore persists approval requests. The schema carries a unique
// index over pending (user, content) pairs as the backstop for the
// engine's read-then-create sequence.
type ApprovalStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewApprovalStore creates an approval store.
func NewApprovalStore(db *sql.DB, logger zerolog.Logger) *ApprovalStore {
	return &ApprovalStore{
		db:     db,
		logger: logger.With().Str("component", "approval-store").Logger(),
	}
}

// FindExisting returns the most recent request for a (user, content)
// pair, or nil when none exists.
func (s *ApprovalStore) FindExisting(ctx context.Context, userID int64, contentKey string) (*routing.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+approvalColumns+" FROM approval_requests WHERE user_id = ? AND content_key = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		userID, contentKey)
	req, err := s.scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// Get returns one request by id.
func (s *ApprovalStore) Get(ctx context.Context, id int64) (*routing.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+approvalColumns+" FROM approval_requests WHERE id = ?", id)
	req, err := s.scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// List returns requests, optionally filtered by status.
func (s *ApprovalStore) List(ctx context.Context, status routing.ApprovalStatus) ([]routing.ApprovalRequest, error) {
	query := "SELECT " + approvalColumns + " FROM approval_requests"
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests: %w", err)
	}
	defer rows.Close()

	var requests []routing.ApprovalRequest
	for rows.Next() {
		req, err := s.scanApproval(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed approval row")
			continue
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// Create inserts a new pending request.
func (s *ApprovalStore) Create(ctx context.Context, params routing.CreateApprovalParams) (*routing.ApprovalRequest, error) {
	guids, err := json.Marshal(emptyIfNil(params.GUIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode guids: %w", err)
	}
	proposed, err := json.Marshal(params.ProposedRouting)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proposed routing: %w", err)
	}
	if params.ProposedRouting == nil {
		proposed = []byte("[]")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_requests (
			user_id, content_key, title, content_type, guids, status,
			triggered_by, reason, proposed_routing
		) VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?)`,
		params.UserID, params.ContentKey, params.Title, string(params.ContentType), string(guids),
		string(params.TriggeredBy), nullIfEmpty(params.Reason), string(proposed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Approve transitions a pending request to approved.
func (s *ApprovalStore) Approve(ctx context.Context, id, approverID int64, notes string) (*routing.ApprovalRequest, error) {
	return s.transition(ctx, id, routing.ApprovalApproved, approverID, notes)
}

// Reject transitions a pending request to rejected.
func (s *ApprovalStore) Reject(ctx context.Context, id, approverID int64, notes string) (*routing.ApprovalRequest, error) {
	return s.transition(ctx, id, routing.ApprovalRejected, approverID, notes)
}

func (s *ApprovalStore) transition(ctx context.Context, id int64, status routing.ApprovalStatus, approverID int64, notes string) (*routing.ApprovalRequest, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE approval_requests SET
			status = ?, approved_by = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`,
		string(status), approverID, nullIfEmpty(notes), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update approval request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *ApprovalStore) scanApproval(row rowScanner) (*routing.ApprovalRequest, error) {
	var (
		req         routing.ApprovalRequest
		contentType string
		guids       string
		status      string
		triggeredBy string
		reason      sql.NullString
		proposed    string
		approvedBy  sql.NullInt64
		notes       sql.NullString
	)

	err := row.Scan(
		&req.ID, &req.UserID, &req.ContentKey, &req.Title, &contentType, &guids, &status,
		&triggeredBy, &reason, &proposed, &approvedBy, &notes, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.ContentType = media.ContentType(contentType)
	req.Status = routing.ApprovalStatus(status)
	req.TriggeredBy = routing.ApprovalTrigger(triggeredBy)
	req.ApprovedBy = nullInt64Ptr(approvedBy)
	if reason.Valid {
		req.Reason = reason.String
	}
	if notes.Valid {
		req.Notes = notes.String
	}

	if err := json.Unmarshal([]byte(guids), &req.GUIDs); err != nil {
		return nil, fmt.Errorf("approval %d has malformed guids: %w", req.ID, err)
	}
	if err := json.Unmarshal([]byte(proposed), &req.ProposedRouting); err != nil {
		return nil, fmt.Errorf("approval %d has malformed proposed routing: %w", req.ID, err)
	}

	return &req, nil
}
