// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solpayhub/payhub/internal/storage"
	"github.com/solpayhub/payhub/internal/storage/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger bridges GORM logging into zap.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStorage connects to Postgres and returns a Storage backed by it.
func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger,
	}, nil
}

func (p *postgresStorage) RunMigrations() error {
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(4021)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(4021)")

	err = p.db.AutoMigrate(
		&models.PaymentRequest{},
		&models.Position{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (p *postgresStorage) CreatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error {
	return p.db.WithContext(ctx).Create(req).Error
}

func (p *postgresStorage) GetPaymentRequestByReference(ctx context.Context, reference string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := p.db.WithContext(ctx).Where("reference = ?", reference).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ConfirmPaymentRequest is a compare-and-transition on the unique
// reference: the UPDATE only matches a pending row, so concurrent
// confirmations of the same reference commit at most once.
func (p *postgresStorage) ConfirmPaymentRequest(ctx context.Context, reference, signature, payload string) (*models.PaymentRequest, error) {
	now := time.Now().UTC()
	res := p.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Where("reference = ? AND status = ?", reference, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusConfirmed,
			"tx_signature":   signature,
			"result_payload": payload,
			"confirmed_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, storage.ErrConflict
	}
	return p.GetPaymentRequestByReference(ctx, reference)
}

func (p *postgresStorage) MarkPaymentDelivered(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := p.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusConfirmed).
		Updates(map[string]interface{}{
			"status":       models.PaymentStatusDelivered,
			"delivered_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrConflict
	}
	return nil
}

func (p *postgresStorage) RevenueSummary(ctx context.Context) (*models.RevenueSummary, error) {
	var summary models.RevenueSummary
	err := p.db.WithContext(ctx).Model(&models.PaymentRequest{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount").
		Where("status IN ?", []string{models.PaymentStatusConfirmed, models.PaymentStatusDelivered}).
		Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (p *postgresStorage) ListRecentPayments(ctx context.Context, limit int) ([]*models.PaymentRequest, error) {
	var reqs []*models.PaymentRequest
	err := p.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}

func (p *postgresStorage) SavePosition(ctx context.Context, pos *models.Position) error {
	return p.db.WithContext(ctx).Create(pos).Error
}

func (p *postgresStorage) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	var pos models.Position
	err := p.db.WithContext(ctx).Where("id = ?", id).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (p *postgresStorage) ListOpenPositions(ctx context.Context) ([]*models.Position, error) {
	var positions []*models.Position
	err := p.db.WithContext(ctx).
		Where("status = ?", models.PositionStatusOpen).
		Order("created_at asc").
		Find(&positions).Error
	return positions, err
}

func (p *postgresStorage) MarkPositionSold(ctx context.Context, id string, profitPct float64) error {
	now := time.Now().UTC()
	res := p.db.WithContext(ctx).Model(&models.Position{}).
		Where("id = ? AND status = ?", id, models.PositionStatusOpen).
		Updates(map[string]interface{}{
			"status":     models.PositionStatusSold,
			"profit_pct": profitPct,
			"sold_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrConflict
	}
	return nil
}
