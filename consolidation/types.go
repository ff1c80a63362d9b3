// Package consolidation is the offline producer that rewrites validated
// insights into durable facts, procedures, or episodes. It runs outside
// BuildMemoryPacket's hot path and writes through the same storage.Store
// interface the composer reads from.
package consolidation

// PromotionKind is the LLM's classification of what an insight should
// become once promoted.
type PromotionKind string

const (
	PromoteFact      PromotionKind = "fact"
	PromoteProcedure PromotionKind = "procedure"
	PromoteEpisode   PromotionKind = "episode"
	PromoteNone      PromotionKind = "none"
)

// promotionDecision is the parsed shape of the LLM's classification
// response, following the teacher's MemoryAction fields.
type promotionDecision struct {
	Kind PromotionKind `json:"kind"`

	// FactKey/Value populate a Fact when Kind is "fact".
	FactKey string      `json:"fact_key"`
	Value   interface{} `json:"value"`

	// TaskType/Content/Priority populate a Procedure when Kind is
	// "procedure".
	TaskType string      `json:"task_type"`
	Content  interface{} `json:"content"`
	Priority int         `json:"priority"`

	// Summary/Highlights populate an Episode when Kind is "episode".
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}
