package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore is the Postgres backend. Rows are mapped through record structs
// so the domain models stay free of ORM tags.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

type loanRecord struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OwnerKey      string          `gorm:"index;not null"`
	Name          string          `gorm:"not null;default:''"`
	Principal     decimal.Decimal `gorm:"type:numeric;not null"`
	AnnualRate    decimal.Decimal `gorm:"type:numeric;not null"`
	TenureMonths  int             `gorm:"not null"`
	EMI           decimal.Decimal `gorm:"column:emi;type:numeric;not null"`
	EMIOverridden bool            `gorm:"column:emi_overridden;not null;default:false"`
	StartDate     time.Time       `gorm:"type:date;not null"`
	Status        string          `gorm:"type:varchar(20);not null;default:'active'"`
	ClosedOn      *time.Time      `gorm:"type:date"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (loanRecord) TableName() string { return "loans" }

type entryRecord struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	LoanID             uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_entry_loan_month"`
	Month              int             `gorm:"not null;uniqueIndex:idx_entry_loan_month"`
	DueDate            time.Time       `gorm:"type:date;not null;index"`
	EMIAmount          decimal.Decimal `gorm:"column:emi_amount;type:numeric;not null"`
	PrincipalComponent decimal.Decimal `gorm:"type:numeric;not null"`
	InterestComponent  decimal.Decimal `gorm:"type:numeric;not null"`
	RemainingPrincipal decimal.Decimal `gorm:"type:numeric;not null"`
	Status             string          `gorm:"type:varchar(20);not null"`
	PaidDate           *time.Time      `gorm:"type:date"`
	PaymentMethod      string          `gorm:"not null;default:''"`
	IsAdjusted         bool            `gorm:"not null;default:false"`
}

func (entryRecord) TableName() string { return "schedule_entries" }

type eventRecord struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	LoanID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	Type            string          `gorm:"type:varchar(20);not null"`
	Amount          decimal.Decimal `gorm:"type:numeric;not null"`
	EventDate       time.Time       `gorm:"type:date;not null"`
	ReductionMode   string          `gorm:"type:varchar(10);not null;default:''"`
	NewEMI          decimal.Decimal `gorm:"column:new_emi;type:numeric;not null"`
	NewTenure       int             `gorm:"not null"`
	InterestSaved   decimal.Decimal `gorm:"type:numeric;not null"`
	PaymentMethod   string          `gorm:"not null;default:''"`
	ScheduleEntryID *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt       time.Time
}

func (eventRecord) TableName() string { return "adjustment_events" }

type topicRecord struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OwnerKey       string     `gorm:"not null;index:idx_topic_review"`
	Syllabus       string     `gorm:"not null"`
	Name           string     `gorm:"not null"`
	Completed      bool       `gorm:"not null;default:false"`
	CompletedAt    *time.Time
	NextReviewDate *time.Time `gorm:"type:date;index:idx_topic_review"`
	IntervalDays   int        `gorm:"not null;default:0"`
	EaseFactor     float64    `gorm:"not null;default:2.5"`
	ReviewCount    int        `gorm:"not null;default:0"`
	LastReviewedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (topicRecord) TableName() string { return "topics" }

// NewGormStore connects to Postgres and migrates the schema.
func NewGormStore(dsn string, log *zap.Logger) (*GormStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("could not get connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&loanRecord{}, &entryRecord{}, &eventRecord{}, &topicRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("could not migrate schema: %w", err)
	}

	log.Info("database connection established and schema initialized",
		zap.String("op", "store.NewGormStore"), zap.String("driver", "postgres"))
	return &GormStore{db: db, logger: log}, nil
}

func (s *GormStore) transaction(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err != nil {
		logRollback(s.logger, op, err)
	}
	return err
}

func dateOf(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func datePtr(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := dateOf(*d)
	return &t
}

func civilPtr(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}

func toLoanRecord(l *models.Loan) loanRecord {
	return loanRecord{
		ID:            l.ID,
		OwnerKey:      l.OwnerKey,
		Name:          l.Name,
		Principal:     l.Principal,
		AnnualRate:    l.AnnualRate,
		TenureMonths:  l.TenureMonths,
		EMI:           l.EMI,
		EMIOverridden: l.EMIOverridden,
		StartDate:     dateOf(l.StartDate),
		Status:        string(l.Status),
		ClosedOn:      datePtr(l.ClosedOn),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func (r loanRecord) model() *models.Loan {
	return &models.Loan{
		ID:            r.ID,
		OwnerKey:      r.OwnerKey,
		Name:          r.Name,
		Principal:     r.Principal,
		AnnualRate:    r.AnnualRate,
		TenureMonths:  r.TenureMonths,
		EMI:           r.EMI,
		EMIOverridden: r.EMIOverridden,
		StartDate:     civil.DateOf(r.StartDate),
		Status:        models.LoanStatus(r.Status),
		ClosedOn:      civilPtr(r.ClosedOn),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toEntryRecords(entries []models.ScheduleEntry) []entryRecord {
	records := make([]entryRecord, len(entries))
	for i, e := range entries {
		records[i] = entryRecord{
			ID:                 e.ID,
			LoanID:             e.LoanID,
			Month:              e.Month,
			DueDate:            dateOf(e.DueDate),
			EMIAmount:          e.EMIAmount,
			PrincipalComponent: e.PrincipalComponent,
			InterestComponent:  e.InterestComponent,
			RemainingPrincipal: e.RemainingPrincipal,
			Status:             string(e.Status),
			PaidDate:           datePtr(e.PaidDate),
			PaymentMethod:      e.PaymentMethod,
			IsAdjusted:         e.IsAdjusted,
		}
	}
	return records
}

func (r entryRecord) model() models.ScheduleEntry {
	return models.ScheduleEntry{
		ID:                 r.ID,
		LoanID:             r.LoanID,
		Month:              r.Month,
		DueDate:            civil.DateOf(r.DueDate),
		EMIAmount:          r.EMIAmount,
		PrincipalComponent: r.PrincipalComponent,
		InterestComponent:  r.InterestComponent,
		RemainingPrincipal: r.RemainingPrincipal,
		Status:             models.EntryStatus(r.Status),
		PaidDate:           civilPtr(r.PaidDate),
		PaymentMethod:      r.PaymentMethod,
		IsAdjusted:         r.IsAdjusted,
	}
}

func entryModels(records []entryRecord) []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, len(records))
	for i, r := range records {
		entries[i] = r.model()
	}
	return entries
}

func toTopicRecord(t *models.Topic) topicRecord {
	return topicRecord{
		ID:             t.ID,
		OwnerKey:       t.OwnerKey,
		Syllabus:       t.Syllabus,
		Name:           t.Name,
		Completed:      t.Completed,
		CompletedAt:    t.CompletedAt,
		NextReviewDate: datePtr(t.NextReviewDate),
		IntervalDays:   t.IntervalDays,
		EaseFactor:     t.EaseFactor,
		ReviewCount:    t.ReviewCount,
		LastReviewedAt: t.LastReviewedAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func (r topicRecord) model() *models.Topic {
	return &models.Topic{
		ID:             r.ID,
		OwnerKey:       r.OwnerKey,
		Syllabus:       r.Syllabus,
		Name:           r.Name,
		Completed:      r.Completed,
		CompletedAt:    r.CompletedAt,
		NextReviewDate: civilPtr(r.NextReviewDate),
		IntervalDays:   r.IntervalDays,
		EaseFactor:     r.EaseFactor,
		ReviewCount:    r.ReviewCount,
		LastReviewedAt: r.LastReviewedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func topicModels(records []topicRecord) []*models.Topic {
	topics := make([]*models.Topic, len(records))
	for i, r := range records {
		topics[i] = r.model()
	}
	return topics
}

func notFound(result *gorm.DB, kind string, id uuid.UUID) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// CreateLoan inserts a loan and its schedule in one transaction.
func (s *GormStore) CreateLoan(ctx context.Context, loan *models.Loan, schedule []models.ScheduleEntry) error {
	return s.transaction(ctx, "store.GormCreateLoan", func(tx *gorm.DB) error {
		record := toLoanRecord(loan)
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create loan: %w", err)
		}
		return createEntries(tx, schedule)
	})
}

func createEntries(tx *gorm.DB, entries []models.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	records := toEntryRecords(entries)
	if err := tx.Create(&records).Error; err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *GormStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var record loanRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return record.model(), nil
}

func (s *GormStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	return gormUpdateLoan(s.db.WithContext(ctx), loan)
}

func gormUpdateLoan(tx *gorm.DB, loan *models.Loan) error {
	record := toLoanRecord(loan)
	result := tx.Model(&loanRecord{}).Where("id = ?", loan.ID).Select("*").Omit("id", "created_at").Updates(&record)
	if err := notFound(result, "loan", loan.ID); err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	return s.transaction(ctx, "store.GormDeleteLoan", func(tx *gorm.DB) error {
		if err := tx.Where("loan_id = ?", id).Delete(&eventRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete associated events: %w", err)
		}
		if err := tx.Where("loan_id = ?", id).Delete(&entryRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete associated schedule: %w", err)
		}
		return notFound(tx.Where("id = ?", id).Delete(&loanRecord{}), "loan", id)
	})
}

func (s *GormStore) ListLoans(ctx context.Context, ownerKey string) ([]*models.Loan, error) {
	return s.findLoans(ctx, "owner_key = ?", ownerKey)
}

func (s *GormStore) ListActiveLoans(ctx context.Context) ([]*models.Loan, error) {
	return s.findLoans(ctx, "status = ?", string(models.LoanStatusActive))
}

func (s *GormStore) findLoans(ctx context.Context, query string, args ...any) ([]*models.Loan, error) {
	var records []loanRecord
	if err := s.db.WithContext(ctx).Where(query, args...).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	loans := make([]*models.Loan, len(records))
	for i, r := range records {
		loans[i] = r.model()
	}
	return loans, nil
}

func (s *GormStore) SaveSchedule(ctx context.Context, loanID uuid.UUID, entries []models.ScheduleEntry) error {
	return s.transaction(ctx, "store.GormSaveSchedule", func(tx *gorm.DB) error {
		return gormReplaceSchedule(tx, loanID, entries)
	})
}

func gormReplaceSchedule(tx *gorm.DB, loanID uuid.UUID, entries []models.ScheduleEntry) error {
	if err := tx.Where("loan_id = ?", loanID).Delete(&entryRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear schedule: %w", err)
	}
	return createEntries(tx, entries)
}

func (s *GormStore) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]models.ScheduleEntry, error) {
	var records []entryRecord
	if err := s.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("month ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get schedule for loan %s: %w", loanID, err)
	}
	return entryModels(records), nil
}

func (s *GormStore) SavePayment(ctx context.Context, loan *models.Loan, entry *models.ScheduleEntry) error {
	return s.transaction(ctx, "store.GormSavePayment", func(tx *gorm.DB) error {
		result := tx.Model(&entryRecord{}).
			Where("id = ? AND loan_id = ?", entry.ID, entry.LoanID).
			Updates(map[string]any{
				"status":         string(entry.Status),
				"paid_date":      datePtr(entry.PaidDate),
				"payment_method": entry.PaymentMethod,
			})
		if err := notFound(result, "schedule entry", entry.ID); err != nil {
			return err
		}
		return gormUpdateLoan(tx, loan)
	})
}

func (s *GormStore) ListDueEntries(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error) {
	var records []entryRecord
	err := s.db.WithContext(ctx).
		Select("schedule_entries.*").
		Joins("JOIN loans ON loans.id = schedule_entries.loan_id").
		Where("schedule_entries.status = ? AND loans.status = ?", string(models.EntryStatusPending), string(models.LoanStatusActive)).
		Where("schedule_entries.due_date BETWEEN ? AND ?", dateOf(from), dateOf(to)).
		Order("schedule_entries.due_date ASC, schedule_entries.month ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due entries: %w", err)
	}
	return entryModels(records), nil
}

func (s *GormStore) ApplyAdjustment(ctx context.Context, loan *models.Loan, entries []models.ScheduleEntry, event *models.AdjustmentEvent) error {
	return s.transaction(ctx, "store.GormApplyAdjustment", func(tx *gorm.DB) error {
		if err := gormUpdateLoan(tx, loan); err != nil {
			return err
		}
		if err := gormReplaceSchedule(tx, loan.ID, entries); err != nil {
			return err
		}

		record := eventRecord{
			ID:              event.ID,
			LoanID:          event.LoanID,
			Type:            string(event.Type),
			Amount:          event.Amount,
			EventDate:       dateOf(event.EventDate),
			ReductionMode:   string(event.ReductionMode),
			NewEMI:          event.NewEMI,
			NewTenure:       event.NewTenure,
			InterestSaved:   event.InterestSaved,
			PaymentMethod:   event.PaymentMethod,
			ScheduleEntryID: event.ScheduleEntryID,
			CreatedAt:       event.CreatedAt,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record adjustment event: %w", err)
		}
		return nil
	})
}

func (s *GormStore) ListEvents(ctx context.Context, loanID uuid.UUID) ([]*models.AdjustmentEvent, error) {
	var records []eventRecord
	if err := s.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get events for loan %s: %w", loanID, err)
	}

	events := make([]*models.AdjustmentEvent, len(records))
	for i, r := range records {
		events[i] = &models.AdjustmentEvent{
			ID:              r.ID,
			LoanID:          r.LoanID,
			Type:            models.EventType(r.Type),
			Amount:          r.Amount,
			EventDate:       civil.DateOf(r.EventDate),
			ReductionMode:   models.ReductionMode(r.ReductionMode),
			NewEMI:          r.NewEMI,
			NewTenure:       r.NewTenure,
			InterestSaved:   r.InterestSaved,
			PaymentMethod:   r.PaymentMethod,
			ScheduleEntryID: r.ScheduleEntryID,
			CreatedAt:       r.CreatedAt,
		}
	}
	return events, nil
}

func (s *GormStore) CreateTopic(ctx context.Context, topic *models.Topic) error {
	record := toTopicRecord(topic)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}

func (s *GormStore) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	var record topicRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("topic %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return record.model(), nil
}

func (s *GormStore) UpdateTopic(ctx context.Context, topic *models.Topic) error {
	record := toTopicRecord(topic)
	result := s.db.WithContext(ctx).Model(&topicRecord{}).Where("id = ?", topic.ID).
		Select("*").Omit("id", "owner_key", "created_at").Updates(&record)
	if err := notFound(result, "topic", topic.ID); err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateReview(ctx context.Context, id uuid.UUID, fields models.ReviewFields) error {
	result := s.db.WithContext(ctx).Model(&topicRecord{}).Where("id = ?", id).Updates(map[string]any{
		"next_review_date": dateOf(fields.NextReviewDate),
		"interval_days":    fields.IntervalDays,
		"ease_factor":      fields.EaseFactor,
		"review_count":     fields.ReviewCount,
		"last_reviewed_at": fields.LastReviewedAt,
		"updated_at":       time.Now().UTC(),
	})
	if err := notFound(result, "topic", id); err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	return notFound(s.db.WithContext(ctx).Where("id = ?", id).Delete(&topicRecord{}), "topic", id)
}

func (s *GormStore) ListTopics(ctx context.Context, ownerKey, syllabus string) ([]*models.Topic, error) {
	q := s.db.WithContext(ctx).Where("owner_key = ?", ownerKey)
	if syllabus != "" {
		q = q.Where("syllabus = ?", syllabus)
	}

	var records []topicRecord
	if err := q.Order("syllabus ASC, created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topicModels(records), nil
}

func (s *GormStore) ListDueTopics(ctx context.Context, ownerKey string, on civil.Date) ([]*models.Topic, error) {
	q := s.db.WithContext(ctx).Where("next_review_date IS NOT NULL AND next_review_date <= ?", dateOf(on))
	if ownerKey != "" {
		q = q.Where("owner_key = ?", ownerKey)
	}

	var records []topicRecord
	if err := q.Order("next_review_date ASC, name ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list due topics: %w", err)
	}
	return topicModels(records), nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var (
	_ Storage = (*SQLiteStore)(nil)
	_ Storage = (*GormStore)(nil)
)
