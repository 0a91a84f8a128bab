package domain

// SourceNeeds is the result of the source-need classification stage. All
// booleans default to false; malformed model output never flips one to true.
type SourceNeeds struct {
	NeedsKnowledgeBase bool   `json:"needs_knowledge_base"`
	NeedsLiveAPI       bool   `json:"needs_live_api"`
	NeedsWebSearch     bool   `json:"needs_web_search"`
	IsClear            bool   `json:"is_clear"`
	Reasoning          string `json:"reasoning,omitempty"`
}

// ToolSpec describes one city-service function offered to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a validated tool selection produced by the model.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
