package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery settlement table is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client streams rows into the settlement table of one dataset.
type Client struct {
	bq    *bigquery.Client
	table *bigquery.Table
}

// NewClient connects to BigQuery and fails fast when the dataset or the
// settlement table is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	tableID := strings.TrimSpace(cfg.SettlementTable)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case tableID == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	client := &Client{bq: bq, table: bq.Dataset(datasetID).Table(tableID)}
	if err := client.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "table", client.table.FullyQualifiedName()), "bigquery client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func (c *Client) metadata(ctx context.Context) (*bigquery.TableMetadata, error) {
	if c == nil || c.table == nil {
		return nil, errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	meta, err := c.table.Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("table %s does not exist", c.table.FullyQualifiedName())
		}
		return nil, fmt.Errorf("checking table %s: %w", c.table.FullyQualifiedName(), err)
	}
	return meta, nil
}

// Ping verifies the settlement table is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.metadata(ctx)
	return err
}

// EnsureColumns fails when the live table lacks any of the named top-level columns.
func (c *Client) EnsureColumns(ctx context.Context, columns []string) error {
	meta, err := c.metadata(ctx)
	if err != nil {
		return err
	}
	return missingColumns(meta.Schema, columns)
}

func missingColumns(schema bigquery.Schema, columns []string) error {
	present := make(map[string]struct{}, len(schema))
	for _, field := range schema {
		present[strings.ToLower(field.Name)] = struct{}{}
	}
	var missing []string
	for _, col := range columns {
		if _, ok := present[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("settlement table missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Put streams one row. BigQuery drops a repeated insertID within its
// best-effort dedup window, so redelivered events rarely double count.
func (c *Client) Put(ctx context.Context, insertID string, row any) error {
	if c == nil || c.table == nil {
		return errClientNotInitialized
	}
	return c.table.Inserter().Put(ctx, &bigquery.StructSaver{Struct: row, InsertID: insertID})
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
