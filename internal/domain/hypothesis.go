package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DiscoveryOpen   = "open"
	DiscoveryClosed = "closed"
)

// DiscoveryHypothesis is a persisted literature-based-discovery result:
// a probable A–C relation bridged by one or more B resources. Referenced
// resources are weak references; deleting one marks the hypothesis stale.
type DiscoveryHypothesis struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AResourceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"a_resource_id"`
	CResourceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"c_resource_id"`
	BResourceIDs datatypes.JSON `gorm:"column:b_resource_ids;type:jsonb" json:"b_resource_ids"`

	Type               string  `gorm:"column:type;not null" json:"type"`
	PathStrength       float64 `gorm:"column:path_strength;not null;default:0" json:"path_strength"`
	SemanticSimilarity float64 `gorm:"column:semantic_similarity;not null;default:0" json:"semantic_similarity"`
	CommonNeighbors    int     `gorm:"column:common_neighbors;not null;default:0" json:"common_neighbors"`
	PlausibilityScore  float64 `gorm:"column:plausibility_score;not null;default:0" json:"plausibility_score"`

	IsValidated *bool  `gorm:"column:is_validated" json:"is_validated,omitempty"`
	Notes       string `gorm:"column:notes" json:"notes,omitempty"`
	Stale       bool   `gorm:"column:stale;default:false" json:"stale,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DiscoveryHypothesis) TableName() string { return "discovery_hypotheses" }

func (h *DiscoveryHypothesis) BridgeIDs() []uuid.UUID {
	if len(h.BResourceIDs) == 0 {
		return nil
	}
	var raw []string
	if err := json.Unmarshal(h.BResourceIDs, &raw); err != nil {
		return nil
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func (h *DiscoveryHypothesis) SetBridgeIDs(ids []uuid.UUID) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	b, _ := json.Marshal(raw)
	h.BResourceIDs = datatypes.JSON(b)
}
