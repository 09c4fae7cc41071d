package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"transcript-insights-go/internal/types"
)

type jobRow struct {
	ID        string `gorm:"primaryKey"`
	Status    string `gorm:"index"`
	Progress  string
	Payload   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type sectionRow struct {
	JobID      string `gorm:"primaryKey"`
	SectionKey string `gorm:"primaryKey"`
	Data       string
	CreatedAt  time.Time
}

type logRow struct {
	ID      uint   `gorm:"primaryKey"`
	JobID   string `gorm:"index"`
	Stage   string
	Level   string
	Message string
	At      time.Time
}

type documentRow struct {
	JobID     string `gorm:"primaryKey"`
	Data      string
	UpdatedAt time.Time
}

type refundRow struct {
	JobID     string `gorm:"primaryKey"`
	Credits   float64
	Reason    string
	CreatedAt time.Time
}

// Gorm is a relational Store on sqlite or postgres.
type Gorm struct {
	db *gorm.DB
}

// OpenGorm connects with the named driver and migrates the schema.
func OpenGorm(driver, dsn string) (*Gorm, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if dsn == "" {
			return nil, errors.New("postgres store requires a dsn")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite serializes writers; one connection avoids "database is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGorm(db)
}

// NewGorm wraps an existing connection.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&jobRow{}, &sectionRow{}, &logRow{}, &documentRow{}, &refundRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Gorm{db: db}, nil
}

func toRow(j *types.Job) (*jobRow, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return &jobRow{ID: j.ID, Status: string(j.Status), Progress: j.Progress, Payload: string(raw), CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt}, nil
}

func fromRow(r *jobRow) (*types.Job, error) {
	var j types.Job
	if err := json.Unmarshal([]byte(r.Payload), &j); err != nil {
		return nil, err
	}
	j.Status = types.JobStatus(r.Status)
	j.Progress = r.Progress
	return &j, nil
}

func (g *Gorm) CreateJob(ctx context.Context, job *types.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	row, err := toRow(job)
	if err != nil {
		return err
	}
	return g.db.WithContext(ctx).Create(row).Error
}

func (g *Gorm) GetJob(ctx context.Context, id string) (*types.Job, error) {
	var row jobRow
	if err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromRow(&row)
}

func (g *Gorm) ClaimJob(ctx context.Context, id string) (*types.Job, bool, error) {
	res := g.db.WithContext(ctx).Model(&jobRow{}).
		Where("id = ? AND status = ?", id, string(types.StatusQueued)).
		Updates(map[string]any{"status": string(types.StatusProcessing), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, false, res.Error
	}
	j, err := g.GetJob(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return j, res.RowsAffected == 1, nil
}

func (g *Gorm) RequeueJob(ctx context.Context, id string) (*types.Job, bool, error) {
	return g.mutate(ctx, id, func(j *types.Job) bool {
		if j.Status != types.StatusFailed {
			return false
		}
		requeue(j)
		return true
	})
}

func (g *Gorm) UpdateJob(ctx context.Context, id string, fn func(*types.Job)) error {
	_, _, err := g.mutate(ctx, id, func(j *types.Job) bool { fn(j); return true })
	return err
}

// mutate applies fn to the locked row and saves it when fn reports a change.
func (g *Gorm) mutate(ctx context.Context, id string, fn func(*types.Job) bool) (*types.Job, bool, error) {
	var out *types.Job
	var changed bool
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row jobRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		j, err := fromRow(&row)
		if err != nil {
			return err
		}
		out, changed = j, fn(j)
		if !changed {
			return nil
		}
		j.UpdatedAt = time.Now().UTC()
		updated, err := toRow(j)
		if err != nil {
			return err
		}
		return tx.Save(updated).Error
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func (g *Gorm) AppendLog(ctx context.Context, jobID string, e types.LogEntry) error {
	return g.db.WithContext(ctx).Create(&logRow{JobID: jobID, Stage: e.Stage, Level: e.Level, Message: e.Message, At: e.At}).Error
}

func (g *Gorm) Logs(ctx context.Context, jobID string) ([]types.LogEntry, error) {
	var rows []logRow
	if err := g.db.WithContext(ctx).Where("job_id = ?", jobID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.LogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.LogEntry{Stage: r.Stage, Level: r.Level, Message: r.Message, At: r.At})
	}
	return out, nil
}

func (g *Gorm) GetSection(ctx context.Context, jobID, key string) (*types.SectionResult, error) {
	var row sectionRow
	if err := g.db.WithContext(ctx).First(&row, "job_id = ? AND section_key = ?", jobID, key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var r types.SectionResult
	if err := json.Unmarshal([]byte(row.Data), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// PutSection keeps the first result written for a key.
func (g *Gorm) PutSection(ctx context.Context, jobID, key string, r types.SectionResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&sectionRow{JobID: jobID, SectionKey: key, Data: string(raw)}).Error
}

func (g *Gorm) PutDocument(ctx context.Context, doc *types.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return g.db.WithContext(ctx).Save(&documentRow{JobID: doc.JobID, Data: string(raw)}).Error
}

func (g *Gorm) GetDocument(ctx context.Context, jobID string) (*types.Document, error) {
	var row documentRow
	if err := g.db.WithContext(ctx).First(&row, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var d types.Document
	if err := json.Unmarshal([]byte(row.Data), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (g *Gorm) Refund(ctx context.Context, jobID string, credits float64, reason string) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&refundRow{JobID: jobID, Credits: credits, Reason: reason}).Error
}

func (g *Gorm) Refunded(ctx context.Context, jobID string) (float64, error) {
	var row refundRow
	if err := g.db.WithContext(ctx).First(&row, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Credits, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
