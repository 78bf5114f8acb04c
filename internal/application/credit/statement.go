package credit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	statementPageSize    = 100
	statementContentType = "text/csv"
	defaultStatementTTL  = 15 * time.Minute
)

var statementHeader = []string{
	"created_at", "id", "type", "source", "bucket", "action", "amount", "balance_after", "team_id", "description",
}

// StatementStorage keeps rendered statements and signs download links
type StatementStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// StatementExport describes an uploaded statement
type StatementExport struct {
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Rows      int       `json:"rows"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatementExporter renders a user's full ledger as CSV, oldest row first
type StatementExporter struct {
	transactions credit.TransactionRepository
	storage      StatementStorage
	linkTTL      time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// StatementExporterConfig contains the dependencies of StatementExporter
type StatementExporterConfig struct {
	Transactions credit.TransactionRepository
	Storage      StatementStorage
	// LinkTTL is how long download links stay valid
	LinkTTL time.Duration
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewStatementExporter creates a new StatementExporter
func NewStatementExporter(cfg StatementExporterConfig) *StatementExporter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = defaultStatementTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &StatementExporter{
		transactions: cfg.Transactions,
		storage:      cfg.Storage,
		linkTTL:      ttl,
		logger:       logger,
		now:          now,
	}
}

// Export uploads the statement and returns a signed link to it
func (e *StatementExporter) Export(ctx context.Context, userID string) (*StatementExport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "export_statement", telemetry.SpanAttrUserID, userID)
	defer span.End()

	if userID == "" {
		return nil, shared.NewDomainError("INVALID_USER", "User ID is required")
	}

	data, rows, err := e.render(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	key := fmt.Sprintf("statements/%s/%s.csv", userID, e.now().UTC().Format("20060102T150405Z"))
	if err := e.storage.Upload(ctx, key, data, statementContentType); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("upload statement: %w", err)
	}
	url, expiresAt, err := e.storage.GenerateDownloadURL(ctx, key, e.linkTTL)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("sign statement link: %w", err)
	}

	e.logger.Info("Ledger statement exported",
		zap.String("user_id", userID),
		zap.String("key", key),
		zap.Int("rows", rows))
	return &StatementExport{UserID: userID, Key: key, Rows: rows, URL: url, ExpiresAt: expiresAt}, nil
}

func (e *StatementExporter) render(ctx context.Context, userID string) ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(statementHeader); err != nil {
		return nil, 0, err
	}

	rows := 0
	filter := shared.Filter{Page: 1, PageSize: statementPageSize, OrderDir: "asc"}
	for {
		page, total, err := e.transactions.ListByUser(ctx, userID, filter)
		if err != nil {
			return nil, 0, fmt.Errorf("load transactions: %w", err)
		}
		for _, tx := range page {
			if err := w.Write(statementRecord(tx)); err != nil {
				return nil, 0, err
			}
		}
		rows += len(page)
		if len(page) < filter.PageSize || int64(rows) >= total {
			break
		}
		filter.Page++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, fmt.Errorf("write statement: %w", err)
	}
	return buf.Bytes(), rows, nil
}

func statementRecord(tx *credit.Transaction) []string {
	teamID := ""
	if tx.TeamID != nil {
		teamID = tx.TeamID.String()
	}
	return []string{
		tx.CreatedAt.UTC().Format(time.RFC3339),
		tx.ID.String(),
		string(tx.Type),
		string(tx.Source),
		string(tx.Bucket),
		tx.Action,
		strconv.FormatInt(tx.Amount, 10),
		strconv.FormatInt(tx.BalanceAfter, 10),
		teamID,
		tx.Description,
	}
}
