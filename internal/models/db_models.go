package models

import "gorm.io/gorm"

const (
	StatusSubmitted = "submitted"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

// TransferRecord 已提交的代付转账
type TransferRecord struct {
	gorm.Model
	TXSignature     string `gorm:"uniqueIndex;size:88"`
	SenderAddress   string `gorm:"size:44;index"`
	ReceiverAddress string `gorm:"size:44"`
	Lamports        uint64
	Blockhash       string `gorm:"size:44"`
	SponsorFunded   bool
	Slot            uint64
	Status          string `gorm:"size:20;default:'submitted';index"` // submitted, confirmed, failed, expired
	Error           string `gorm:"size:512"`
}
