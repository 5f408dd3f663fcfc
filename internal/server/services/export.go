package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/logging"
	sc "github.com/dmitrijs2005/timesheet/internal/server/config"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	presignExpiry = 15 * time.Minute
	maxExportDays = 366
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

var exportHeader = []string{"date", "user_id", "project_names", "task_name", "hours", "description", "workspace_entry_id"}

// ExportRequest selects entries with From <= date < To, for one user when
// UserID is set.
type ExportRequest struct {
	From   time.Time
	To     time.Time
	UserID string
}

type ExportResult struct {
	Export *models.Export `json:"export"`
	URL    string         `json:"url"`
}

// ExportService writes time entries as gzip-compressed CSV to object storage
// and hands out presigned download links.
type ExportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	log         logging.Logger
}

func NewExportService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config, log logging.Logger) *ExportService {
	return &ExportService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		log:         log.With("module", "export"),
	}
}

func GetRandomStorageKey() string {
	d := time.Now().UTC()
	return fmt.Sprintf("exports/%04d/%02d/%02d/%v.csv.gz", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *ExportService) getS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Export writes the selected entries and returns the export record with a
// presigned GET URL valid for 15 minutes.
func (s *ExportService) Export(ctx context.Context, requestedBy string, req ExportRequest) (*ExportResult, error) {
	if !req.From.Before(req.To) {
		return nil, fmt.Errorf("%w: from must be before to", common.ErrValidation)
	}
	if req.To.Sub(req.From) > maxExportDays*24*time.Hour {
		return nil, fmt.Errorf("%w: range exceeds %d days", common.ErrValidation, maxExportDays)
	}

	entries, err := s.repomanager.TimeEntries(s.db).ListRange(ctx, req.From, req.To, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("error listing time entries: %w", err)
	}

	body, rows, err := encodeExport(entries)
	if err != nil {
		return nil, err
	}

	exportRepo := s.repomanager.Exports(s.db)
	export, err := exportRepo.Create(ctx, &models.Export{
		RequestedBy: requestedBy,
		StorageKey:  GetRandomStorageKey(),
		From:        req.From,
		To:          req.To,
		UserFilter:  req.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating export: %w", err)
	}

	client, err := s.getS3Client(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:          &bucket,
		Key:             &export.StorageKey,
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("text/csv"),
		ContentEncoding: aws.String("gzip"),
	}); err != nil {
		return nil, fmt.Errorf("error uploading export: %w", err)
	}

	if err := exportRepo.MarkUploaded(ctx, export.ID, rows); err != nil {
		return nil, fmt.Errorf("error updating export: %w", err)
	}
	export.RowCount = rows
	export.UploadStatus = models.UploadCompleted

	url, err := s.presign(ctx, client, export.StorageKey)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "export uploaded", "export_id", export.ID, "key", export.StorageKey, "rows", rows)
	return &ExportResult{Export: export, URL: url}, nil
}

// Recent lists the latest exports.
func (s *ExportService) Recent(ctx context.Context, limit int) ([]*models.Export, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	exports, err := s.repomanager.Exports(s.db).ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing exports: %w", err)
	}
	return exports, nil
}

// Get returns an uploaded export with a fresh presigned URL.
func (s *ExportService) Get(ctx context.Context, id string) (*ExportResult, error) {
	export, err := s.repomanager.Exports(s.db).ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading export: %w", err)
	}
	if export.UploadStatus != models.UploadCompleted {
		return nil, fmt.Errorf("export %s is not uploaded: %w", id, common.ErrorNotFound)
	}

	client, err := s.getS3Client(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.presign(ctx, client, export.StorageKey)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Export: export, URL: url}, nil
}

func (s *ExportService) presign(ctx context.Context, client *s3.Client, key string) (string, error) {
	bucket := s.config.S3Bucket
	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("error presigning export: %w", err)
	}
	return req.URL, nil
}

// encodeExport renders one CSV row per task and gzips the result.
func encodeExport(entries []*models.TimeEntry) ([]byte, int, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	w := csv.NewWriter(zw)

	rows := 0
	if err := w.Write(exportHeader); err != nil {
		return nil, 0, err
	}
	for _, e := range entries {
		for i, taskID := range e.TaskIDs {
			rec := []string{
				e.Date.UTC().Format(time.DateOnly),
				e.UserID,
				strings.Join(e.ProjectNames, "; "),
				at(e.TaskNames, i, taskID),
				strconv.FormatFloat(at(e.HoursWorked, i, 0), 'f', -1, 64),
				at(e.Descriptions, i, ""),
				at(e.WorkspaceEntryIDs, i, ""),
			}
			if err := w.Write(rec); err != nil {
				return nil, 0, err
			}
			rows++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, fmt.Errorf("error writing csv: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("error compressing csv: %w", err)
	}
	return buf.Bytes(), rows, nil
}

func at[T any](s []T, i int, def T) T {
	if i < len(s) {
		return s[i]
	}
	return def
}
