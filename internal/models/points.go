package models

import (
	"time"
)

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// Источники начислений
const (
	SourceDataContribution = "data_contribution"
	SourceAffiliate        = "affiliate"
)

// PointsEntry строка append-only журнала баллов
type PointsEntry struct {
	ID           string          `json:"id"`
	IdentityHash string          `json:"identity_hash"`
	Points       int             `json:"points"`
	Type         TransactionType `json:"type"`
	Source       string          `json:"source"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

type PointsAward struct {
	Points    int  `json:"points"`
	RiskScore int  `json:"risk_score"`
	Flagged   bool `json:"flagged"`
}
