package utils

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"userbench/internal/logger"
	"userbench/internal/models"

	"github.com/google/uuid"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ExportProgressCallback is called every progressEvery rows.
type ExportProgressCallback func(written, total int)

const progressEvery = 10000

// ExportConfig holds configuration for a user export.
type ExportConfig struct {
	ExportID         uuid.UUID
	Format           string
	Dir              string
	FilePrefix       string
	ProgressCallback ExportProgressCallback
}

// ExportResult holds the result of an export.
type ExportResult struct {
	FilePath       string
	Rows           int
	GenerationTime int // milliseconds
}

// CSVHeaders are the columns written by WriteUsersCSV. Addresses are
// flattened into a single column, one "street|city|country|purchaseDate"
// entry per address separated by ";".
var CSVHeaders = []string{
	"username",
	"first_name",
	"last_name",
	"email",
	"age",
	"date_of_birth",
	"is_married",
	"addresses",
}

// ExportUsers writes users to a new file under config.Dir.
func ExportUsers(ctx context.Context, config ExportConfig, users []models.User) (ExportResult, error) {
	log := logger.New("utils").File("user_export").Function("ExportUsers")
	startTime := time.Now()

	format := strings.ToLower(config.Format)
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatJSON {
		return ExportResult{}, log.ErrMsg("unsupported export format " + config.Format)
	}

	dir := config.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportResult{}, log.Err("failed to create export directory", err, "dir", dir)
	}

	id := config.ExportID
	if id == uuid.Nil {
		id = uuid.New()
	}
	prefix := config.FilePrefix
	if prefix == "" {
		prefix = "users"
	}
	path := filepath.Join(dir, prefix+"_"+id.String()+"."+format)

	file, err := os.Create(path)
	if err != nil {
		return ExportResult{}, log.Err("failed to create export file", err, "path", path)
	}
	defer file.Close()

	writer := bufio.NewWriterSize(file, 1<<20)
	if format == FormatJSON {
		err = WriteUsersJSON(ctx, writer, users)
	} else {
		err = WriteUsersCSV(ctx, writer, users, config.ProgressCallback)
	}
	if err != nil {
		_ = os.Remove(path)
		return ExportResult{}, log.Err("failed to write export", err, "path", path)
	}
	if err := writer.Flush(); err != nil {
		_ = os.Remove(path)
		return ExportResult{}, log.Err("failed to flush export", err, "path", path)
	}

	result := ExportResult{
		FilePath:       path,
		Rows:           len(users),
		GenerationTime: int(time.Since(startTime).Milliseconds()),
	}
	log.Info("export completed", "path", path, "rows", result.Rows, "ms", result.GenerationTime)
	return result, nil
}

// WriteUsersCSV writes a header row followed by one row per user. ctx is
// checked between rows.
func WriteUsersCSV(ctx context.Context, w io.Writer, users []models.User, progress ExportProgressCallback) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(CSVHeaders))
	for i, u := range users {
		if i%1000 == 0 && ctx.Err() != nil {
			return fmt.Errorf("export cancelled: %w", ctx.Err())
		}

		row[0] = u.Username
		row[1] = u.FirstName
		row[2] = u.LastName
		row[3] = u.Email
		row[4] = strconv.Itoa(u.Age)
		row[5] = u.DateOfBirth.UTC().Format(time.DateOnly)
		row[6] = strconv.FormatBool(u.IsMarried)
		row[7] = flattenAddresses(u.Addresses)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}

		if progress != nil && (i+1)%progressEvery == 0 {
			progress(i+1, len(users))
		}
	}

	writer.Flush()
	if progress != nil {
		progress(len(users), len(users))
	}
	return writer.Error()
}

// WriteUsersJSON writes users as newline-delimited JSON.
func WriteUsersJSON(ctx context.Context, w io.Writer, users []models.User) error {
	encoder := json.NewEncoder(w)
	for i, u := range users {
		if i%1000 == 0 && ctx.Err() != nil {
			return fmt.Errorf("export cancelled: %w", ctx.Err())
		}
		if err := encoder.Encode(u); err != nil {
			return fmt.Errorf("failed to encode user %s: %w", u.Username, err)
		}
	}
	return nil
}

func flattenAddresses(addresses []models.Address) string {
	var b strings.Builder
	for i, a := range addresses {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(a.Street)
		b.WriteByte('|')
		b.WriteString(a.City)
		b.WriteByte('|')
		b.WriteString(a.Country)
		b.WriteByte('|')
		b.WriteString(a.PurchaseDate.UTC().Format(time.DateOnly))
	}
	return b.String()
}
