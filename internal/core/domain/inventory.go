package domain

import (
	"strings"
	"time"
)

type Classification string

const (
	ClassificationGood      Classification = "GOOD"
	ClassificationExcellent Classification = "EXCELLENT"
	ClassificationUnusable  Classification = "UNUSABLE"
	ClassificationIdle      Classification = "IDLE"
)

// NormalizeClassification upper-cases and trims the value, falling back to GOOD when blank.
func NormalizeClassification(s string) Classification {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ClassificationGood
	}
	return Classification(s)
}

const DefaultDepreciationRate = 10.0

type SectorChange struct {
	Sector    Sector    `json:"sector"`
	ChangedAt time.Time `json:"changedAt"`
}

type InventoryItem struct {
	ID                  string         `json:"id"`
	AssetNumber         string         `json:"assetNumber"`
	PreviousAssetNumber string         `json:"previousAssetNumber,omitempty"`
	Description         string         `json:"description"`
	Classification      Classification `json:"classification"`
	Sector              Sector         `json:"sector"`
	OtherIdentification string         `json:"otherIdentification,omitempty"`
	Notes               string         `json:"notes,omitempty"`
	PhotoURL            string         `json:"photoUrl,omitempty"`
	PhotoKey            string         `json:"-"`
	AcquisitionValue    float64        `json:"acquisitionValue"`
	AcquisitionDate     time.Time      `json:"acquisitionDate"`
	DepreciationRate    float64        `json:"depreciationRatePercentPerYear"`
	SectorHistory       []SectorChange `json:"sectorHistory"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// ValuedItem is an item annotated with its depreciated value at read time.
type ValuedItem struct {
	InventoryItem
	CurrentValue float64 `json:"currentValue"`
}

// ItemFilter narrows a listing. An empty SectorID matches every item.
type ItemFilter struct {
	SectorID string
}

func (f ItemFilter) Matches(item InventoryItem) bool {
	return f.SectorID == "" || item.Sector.ID == f.SectorID
}

// Summary aggregates a listing for the dashboard.
type Summary struct {
	TotalItems            int            `json:"totalItems"`
	TotalAcquisitionValue float64        `json:"totalAcquisitionValue"`
	TotalCurrentValue     float64        `json:"totalCurrentValue"`
	ByClassification      map[string]int `json:"byClassification"`
	ByOtherIdentification map[string]int `json:"byOtherIdentification"`
}
