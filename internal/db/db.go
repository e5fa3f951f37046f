package db

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"SponsorPay/internal/config"
	"SponsorPay/internal/models"
)

var ErrNotFound = errors.New("transfer record not found")

// Open connects to the configured database and migrates the transfer table.
func Open(cfg config.Storage) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if err := conn.AutoMigrate(&models.TransferRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

func SaveTransfer(db *gorm.DB, rec *models.TransferRecord) error {
	return db.Save(rec).Error
}

func GetTransferBySignature(db *gorm.DB, signature string) (*models.TransferRecord, error) {
	var rec models.TransferRecord
	err := db.Where("tx_signature = ?", signature).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// ListPendingTransfers 返回提交时间早于 before 且仍未确认的转账
func ListPendingTransfers(db *gorm.DB, before time.Time, limit int) ([]models.TransferRecord, error) {
	var recs []models.TransferRecord
	err := db.Where("status = ? AND created_at < ?", models.StatusSubmitted, before).
		Order("created_at").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// maxErrorLen matches the size of TransferRecord.Error.
const maxErrorLen = 512

func UpdateTransferStatus(db *gorm.DB, signature, status string, slot uint64, errMsg string) error {
	errMsg = truncate(errMsg, maxErrorLen)
	res := db.Model(&models.TransferRecord{}).
		Where("tx_signature = ?", signature).
		Updates(map[string]any{"status": status, "slot": slot, "error": errMsg})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Store binds the package functions to one connection.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) SaveTransfer(ctx context.Context, rec *models.TransferRecord) error {
	return SaveTransfer(s.DB.WithContext(ctx), rec)
}

func (s *Store) UpdateTransferStatus(ctx context.Context, signature, status string, slot uint64, errMsg string) error {
	return UpdateTransferStatus(s.DB.WithContext(ctx), signature, status, slot, errMsg)
}

func (s *Store) GetTransferBySignature(ctx context.Context, signature string) (*models.TransferRecord, error) {
	return GetTransferBySignature(s.DB.WithContext(ctx), signature)
}

func (s *Store) ListPendingTransfers(ctx context.Context, before time.Time, limit int) ([]models.TransferRecord, error) {
	return ListPendingTransfers(s.DB.WithContext(ctx), before, limit)
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
