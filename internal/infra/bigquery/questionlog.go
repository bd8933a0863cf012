// Package bigquery is the durable sink for the question/answer audit log.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	questionLogTable = "question_log"
	dateFormat       = "2006-01-02"
)

// QuestionLogRow is one recorded question/answer exchange.
type QuestionLogRow struct {
	EntryID    string              `bigquery:"entry_id"`
	SessionID  string              `bigquery:"session_id"`
	Question   string              `bigquery:"question"`
	Answer     bigquery.NullString `bigquery:"answer"`
	AgentError bigquery.NullString `bigquery:"agent_error"`
	AskedTS    time.Time           `bigquery:"asked_ts"`
	DurationMS int64               `bigquery:"duration_ms"`
}

// QuestionLogRepository writes and reads the audit log.
type QuestionLogRepository interface {
	InsertQuestionLog(ctx context.Context, row *QuestionLogRow) error
	QueryQuestionLogByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*QuestionLogRow, error)
	Close() error
}

// BigQueryQuestionLogRepository is the concrete QuestionLogRepository. It
// holds a shared BigQuery client to avoid creating a new connection per write.
type BigQueryQuestionLogRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewQuestionLogRepository creates a repository for the given project/dataset.
func NewQuestionLogRepository(ctx context.Context, projectID, datasetID string) (*BigQueryQuestionLogRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewQuestionLogRepository: creating client: %w", err)
	}
	return &BigQueryQuestionLogRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryQuestionLogRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertQuestionLog inserts one row into <dataset>.question_log.
func (r *BigQueryQuestionLogRepository) InsertQuestionLog(ctx context.Context, row *QuestionLogRow) error {
	table := r.client.DatasetInProject(r.projectID, r.datasetID).Table(questionLogTable)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertQuestionLog: inserting row: %w", err)
	}
	return nil
}

// QueryQuestionLogByDateRange queries recorded exchanges within the date range.
func (r *BigQueryQuestionLogRepository) QueryQuestionLogByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*QuestionLogRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			entry_id,
			session_id,
			question,
			answer,
			agent_error,
			asked_ts,
			duration_ms
		FROM %s.%s
		WHERE DATE(asked_ts) >= @start_date
		  AND DATE(asked_ts) <= @end_date
		ORDER BY asked_ts
	`, r.datasetID, questionLogTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryQuestionLogByDateRange: query read: %w", err)
	}

	var rows []*QuestionLogRow
	for {
		var row QuestionLogRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryQuestionLogByDateRange: iter next: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

var _ QuestionLogRepository = (*BigQueryQuestionLogRepository)(nil)
