package db

import "time"

type LedgerEntryModel struct {
	EvidenceHash string    `gorm:"column:evidence_hash;type:char(66);primaryKey"`
	RunIDHash    string    `gorm:"column:run_id_hash;type:char(66);index;not null"`
	AgentID      string    `gorm:"column:agent_id;index;not null"`
	Score        int       `gorm:"not null"`
	Level        int       `gorm:"not null"`
	IsDrill      bool      `gorm:"not null"`
	AnchoredAt   time.Time `gorm:"not null"`
}

func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

type MarketPolicyModel struct {
	Market          string `gorm:"primaryKey"`
	MaxLTV          int64  `gorm:"column:max_ltv;not null"`
	MinLTV          int64  `gorm:"column:min_ltv;not null"`
	MaxCap          string `gorm:"column:max_cap;type:numeric(20,0);not null"`
	IsFrozen        bool   `gorm:"not null"`
	LastUpdateAt    *time.Time
	CooldownSeconds int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (MarketPolicyModel) TableName() string {
	return "market_policies"
}

type RoleGrantModel struct {
	Role      string    `gorm:"primaryKey"`
	Subject   string    `gorm:"primaryKey"`
	GrantedAt time.Time `gorm:"not null"`
}

func (RoleGrantModel) TableName() string {
	return "role_grants"
}
