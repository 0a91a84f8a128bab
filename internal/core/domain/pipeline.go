package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PipelineStage enumerates the orchestrator states. Transitions are an
// exhaustive switch in the usecase layer; there are no string-keyed edges.
type PipelineStage int

const (
	StageIntake PipelineStage = iota
	StageSafetyCheck
	StageDocumentIntake
	StageClassifySources
	StageClarify
	StageRetrieve
	StageAssembleContext
	StageGenerate
	EndedToxic
	EndedNeedsClarification
	EndedWithResponse
)

func (s PipelineStage) Terminal() bool {
	switch s {
	case EndedToxic, EndedNeedsClarification, EndedWithResponse:
		return true
	default:
		return false
	}
}

func (s PipelineStage) String() string {
	switch s {
	case StageIntake:
		return "intake"
	case StageSafetyCheck:
		return "safety_check"
	case StageDocumentIntake:
		return "document_intake"
	case StageClassifySources:
		return "classify_sources"
	case StageClarify:
		return "clarify"
	case StageRetrieve:
		return "retrieve"
	case StageAssembleContext:
		return "assemble_context"
	case StageGenerate:
		return "generate"
	case EndedToxic:
		return "ended_toxic"
	case EndedNeedsClarification:
		return "ended_needs_clarification"
	case EndedWithResponse:
		return "ended_with_response"
	default:
		return "unknown"
	}
}

// TokenUsage is accumulated per request and returned with the result; there
// are no process-global counters.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

type UploadedFile struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// PipelineState accumulates as a message flows through the stages. Fields are
// append-only: a terminal branch never overwrites what an earlier stage wrote.
type PipelineState struct {
	Stage   PipelineStage
	Message string
	History []ConversationTurn

	UploadedFiles    []UploadedFile
	UserDocuments    []Chunk
	HasUserDocuments bool

	IsToxic            bool
	NeedsKnowledgeBase bool
	NeedsLiveAPI       bool
	NeedsWebSearch     bool
	IsClear            bool

	ClarificationQuestions []string

	KnowledgeContext string
	APIResult        string
	WebResults       []WebSearchResult

	SystemPrompt string
	Context      string

	Tokens   TokenUsage
	Response string
}

// PipelineResult is the caller-facing projection of a finished state.
type PipelineResult struct {
	Outcome                string             `json:"outcome"`
	Response               string             `json:"response,omitempty"`
	ClarificationQuestions []string           `json:"clarification_questions,omitempty"`
	History                []ConversationTurn `json:"history"`
	Tokens                 TokenUsage         `json:"tokens"`
}
