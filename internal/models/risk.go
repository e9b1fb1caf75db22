package models

import (
	"time"
)

// Названия слагаемых риск-скора
const (
	FactorVelocity          = "velocity"
	FactorBatchSize         = "batch_size"
	FactorBehavioralEntropy = "behavioral_entropy"
	FactorTimingRegularity  = "timing_regularity"
	FactorFingerprint       = "fingerprint"
)

type RiskAssessment struct {
	IdentityHash   string         `json:"identity_hash"`
	Score          int            `json:"score"`
	Factors        map[string]int `json:"factors"`
	EventsLastHour int            `json:"events_last_hour"`
	EventsLastDay  int            `json:"events_last_day"`
	HighRisk       bool           `json:"high_risk"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}
