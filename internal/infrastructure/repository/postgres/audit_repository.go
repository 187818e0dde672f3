package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// AuditRepository stores one row per finalized verification.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2024030101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS verification_audit (
	session_id TEXT NOT NULL,
	order_id TEXT NOT NULL,
	barcode TEXT NOT NULL,
	user_id TEXT NOT NULL,
	comments TEXT NOT NULL DEFAULT '',
	passed BOOLEAN NOT NULL,
	verdict JSONB NOT NULL,
	archive_keys JSONB NOT NULL DEFAULT '{}'::jsonb,
	finalized_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, order_id, finalized_at)
);

CREATE INDEX IF NOT EXISTS idx_verification_audit_order ON verification_audit(order_id, finalized_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// RecordFinalized is idempotent so redelivered events do not duplicate rows.
func (r *AuditRepository) RecordFinalized(ctx context.Context, event domain.FinalizedVerification) error {
	if strings.TrimSpace(event.OrderID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record finalized", fmt.Errorf("order id is required"))
	}
	verdictJSON, err := json.Marshal(event.Verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	keys := event.ArchiveKeys
	if keys == nil {
		keys = map[string]string{}
	}
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("marshal archive keys: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO verification_audit (
	session_id, order_id, barcode, user_id, comments, passed, verdict, archive_keys, finalized_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (session_id, order_id, finalized_at) DO NOTHING
`,
		event.SessionID, event.OrderID, event.Barcode, event.UserID, event.Comments,
		event.Verdict.Passed, verdictJSON, keysJSON, event.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification audit: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.FinalizedVerification, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT session_id, order_id, barcode, user_id, comments, verdict, archive_keys, finalized_at
FROM verification_audit
WHERE order_id = $1
ORDER BY finalized_at DESC
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list verification audit: %w", err)
	}
	defer rows.Close()

	out := make([]domain.FinalizedVerification, 0)
	for rows.Next() {
		var event domain.FinalizedVerification
		var verdictRaw, keysRaw []byte
		if err := rows.Scan(
			&event.SessionID, &event.OrderID, &event.Barcode, &event.UserID, &event.Comments,
			&verdictRaw, &keysRaw, &event.FinalizedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification audit: %w", err)
		}
		if err := json.Unmarshal(verdictRaw, &event.Verdict); err != nil {
			return nil, fmt.Errorf("decode verdict: %w", err)
		}
		if len(keysRaw) > 0 {
			if err := json.Unmarshal(keysRaw, &event.ArchiveKeys); err != nil {
				return nil, fmt.Errorf("decode archive keys: %w", err)
			}
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification audit: %w", err)
	}
	return out, nil
}
