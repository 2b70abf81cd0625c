// Package models holds the plain data-transfer structs for every entity in
// the data model: organizations, users, roles, memories, activation state,
// co-activation edges, agent runs, pipeline tasks, goals, and policy
// versions. These are hand-written rather than ORM-generated (see
// DESIGN.md) but follow the same shape the generated types would have had:
// one struct per table, JSON tags for API responses, plain Go types for
// nullable columns via pointers.
package models

import "time"

// Scope is the visibility tier attached to a memory or goal.
type Scope string

const (
	ScopePersonal     Scope = "personal"
	ScopeTeam         Scope = "team"
	ScopeDepartment   Scope = "department"
	ScopeDivision     Scope = "division"
	ScopeOrganization Scope = "organization"
	ScopeGlobal       Scope = "global"
)

// MemoryType distinguishes cache-tier from persistent memories.
type MemoryType string

const (
	MemoryTypeShortTerm MemoryType = "short_term"
	MemoryTypeLongTerm  MemoryType = "long_term"
)

// Classification is the confidentiality label on a memory.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationRestricted   Classification = "restricted"
)

// ShareType names what a MemorySharing grant targets.
type ShareType string

const (
	ShareTypeUser ShareType = "user"
	ShareTypeTeam ShareType = "team"
)

// SharePermission is the level of access a share grant confers.
type SharePermission string

const (
	SharePermissionRead    SharePermission = "read"
	SharePermissionComment SharePermission = "comment"
	SharePermissionEdit    SharePermission = "edit"
)

// TeamRole is a team membership's role.
type TeamRole string

const (
	TeamRoleMember TeamRole = "member"
	TeamRoleLead   TeamRole = "lead"
	TeamRoleAdmin  TeamRole = "admin"
)

// Organization is the primary tenant-isolation boundary.
type Organization struct {
	ID          string
	Slug        string
	DisplayName string
	Active      bool
	Settings    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User is a principal that can authenticate and hold roles across orgs.
type User struct {
	ID               string
	Email            string
	HashedCredential string
	Active           bool
	ClearanceLevel   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Role is a named bundle of permission strings scoped to one organization.
// Permission strings support wildcards "resource:*" and "resource:action:*"
// plus the super-admin marker "*:*".
type Role struct {
	ID             string
	OrganizationID string
	Name           string
	Permissions    []string
	CreatedAt      time.Time
}

// UserRole grants a user a role within an organization, with optional expiry.
type UserRole struct {
	UserID         string
	RoleID         string
	OrganizationID string
	ExpiresAt      *time.Time
	GrantedAt      time.Time
}

// Team is a group-based grouping within an organization.
type Team struct {
	ID             string
	OrganizationID string
	Name           string
	CreatedAt      time.Time
}

// TeamMember binds a user to a team with a role.
type TeamMember struct {
	TeamID   string
	UserID   string
	Role     TeamRole
	JoinedAt time.Time
}

// OrganizationHierarchy is a tree node over departments/divisions, stored
// with an ltree-style materialized path ("root.division.department").
type OrganizationHierarchy struct {
	ID             string
	OrganizationID string
	ParentID       *string
	Name           string
	Path           string
}

// Memory is the central unit the system stores, retrieves, and reasons over.
type Memory struct {
	ID               string
	OrganizationID   string
	OwnerUserID      string
	Scope            Scope
	ScopeID          *string
	MemoryType       MemoryType
	Classification   Classification
	RequiredClear    int
	Title            string
	ContentPreview   string
	ContentHash      string
	Tags             []string
	Entities         map[string][]string
	Metadata         map[string]any
	SourceType       string
	VectorID         string
	EmbeddingModel   string
	IsActive         bool
	LegalHold        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	AccessCount      int
	LastAccessedAt   *time.Time
}

// MemorySharing is an explicit share grant layered on top of scope/role access.
type MemorySharing struct {
	ID         string
	MemoryID   string
	ShareType  ShareType
	TargetID   string
	Permission SharePermission
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// ActivationState is the 1:1 mutable counter set for a memory.
type ActivationState struct {
	MemoryID       string
	BaseImportance float64
	Confidence     float64
	Contradicted   bool
	RiskFactor     float64
	AccessCount    int
	LastAccessedAt *time.Time
	UpdatedAt      time.Time
}

// DefaultActivationState returns the default on first observation:
// base_importance=0.5, confidence=0.8, contradicted=false, risk_factor=0, access_count=0.
func DefaultActivationState(memoryID string) ActivationState {
	return ActivationState{
		MemoryID:       memoryID,
		BaseImportance: 0.5,
		Confidence:     0.8,
		Contradicted:   false,
		RiskFactor:     0,
		AccessCount:    0,
	}
}

// CoactivationEdge is an undirected association between two memories,
// canonicalized so MemoryA < MemoryB.
type CoactivationEdge struct {
	OrganizationID     string
	MemoryA            string
	MemoryB            string
	Count              int
	EdgeWeight         float64
	LastCoactivatedAt  time.Time
}

// ActivationComponents is the eight-component breakdown behind one activation score.
type ActivationComponents struct {
	Rel  float64 `json:"rel"`
	Rec  float64 `json:"rec"`
	Freq float64 `json:"freq"`
	Imp  float64 `json:"imp"`
	Conf float64 `json:"conf"`
	Ctx  float64 `json:"ctx"`
	Prov float64 `json:"prov"`
	Risk float64 `json:"risk"`
	Nbr  float64 `json:"nbr"`
}

// GatingInfo records the permission decision made for one retrieval candidate.
type GatingInfo struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// RetrievalResultExplanation is one ranked result within a RetrievalExplanation.
type RetrievalResultExplanation struct {
	MemoryID   string               `json:"memory_id"`
	Activation float64              `json:"activation"`
	Components ActivationComponents `json:"components"`
	Gating     GatingInfo           `json:"gating"`
	Rank       int                  `json:"rank"`
}

// RetrievalExplanation is the append-only per-query audit of a retrieval's
// ranked results.
type RetrievalExplanation struct {
	ID          string
	QueryHash   string
	UserID      string
	OrgID       string
	RetrievedAt time.Time
	TopK        int
	Results     []RetrievalResultExplanation
}

// FeedbackType enumerates the kinds of feedback a memory can receive.
type FeedbackType string

const (
	FeedbackTypeRelevance FeedbackType = "relevance"
	FeedbackTypeQuality   FeedbackType = "quality"
)

// MemoryFeedback records a user reaction to a retrieved memory.
type MemoryFeedback struct {
	ID        string
	MemoryID  string
	ActorID   string
	Type      FeedbackType
	Payload   map[string]any
	IsApplied bool
	CreatedAt time.Time
}

// CausalRelation enumerates the relation kinds a CausalHypothesis can assert.
type CausalRelation string

const (
	CausalRelationCorrelates CausalRelation = "correlates"
	CausalRelationCauses     CausalRelation = "causes"
)

// CausalStatus is the lifecycle of a CausalHypothesis.
type CausalStatus string

const (
	CausalStatusProposed  CausalStatus = "proposed"
	CausalStatusActive    CausalStatus = "active"
	CausalStatusContested CausalStatus = "contested"
	CausalStatusRejected  CausalStatus = "rejected"
)

// CausalHypothesis is a derived causal/correlational claim over a set of memories.
type CausalHypothesis struct {
	ID                string
	OrganizationID    string
	Relation          CausalRelation
	EvidenceMemoryIDs []string
	Confidence        float64
	Status            CausalStatus
	UpdatedAt         time.Time
}

// AgentRunStatus is the terminal or in-flight status of one AgentRun.
type AgentRunStatus string

const (
	AgentRunStatusSuccess AgentRunStatus = "success"
	AgentRunStatusRetry   AgentRunStatus = "retry"
	AgentRunStatusFailed  AgentRunStatus = "failed"
	AgentRunStatusSkipped AgentRunStatus = "skipped"
)

// AgentRun records one attempt of one named agent version against one memory.
type AgentRun struct {
	ID            string
	OrganizationID string
	MemoryID      string
	AgentName     string
	AgentVersion  string
	InputsHash    string
	Status        AgentRunStatus
	Confidence    float64
	Outputs       map[string]any
	Warnings      []string
	Errors        []string
	StartedAt     time.Time
	FinishedAt    *time.Time
	TraceID       string
	Provenance    map[string]any
}

// AgentRunEvent is one step in an AgentRun's tool-call trajectory.
type AgentRunEvent struct {
	ID         string
	AgentRunID string
	StepIndex  int
	EventType  string
	Summary    string
	Payload    map[string]any
	CreatedAt  time.Time
}

// AgentResultCache holds a cross-memory reusable agent output keyed without
// the memory id.
type AgentResultCache struct {
	CacheKey   string
	OrgID      string
	AgentName  string
	Version    string
	Strategy   string
	Model      string
	Outputs    map[string]any
	Confidence float64
	ExpiresAt  time.Time
}

// PipelineTaskStatus is the SLA scheduler's task lifecycle state.
type PipelineTaskStatus string

const (
	PipelineTaskQueued    PipelineTaskStatus = "queued"
	PipelineTaskRunning   PipelineTaskStatus = "running"
	PipelineTaskBlocked   PipelineTaskStatus = "blocked"
	PipelineTaskSucceeded PipelineTaskStatus = "succeeded"
	PipelineTaskFailed    PipelineTaskStatus = "failed"
)

// PipelineTask is one unit of scheduled, SLA-ordered background work.
type PipelineTask struct {
	ID                 string
	OrganizationID     string
	TaskType           string
	Status             PipelineTaskStatus
	Priority           int
	SLADeadline        time.Time
	SLACategory        string
	EstimatedTokens    int
	ActualTokens       int
	EstimatedLatencyMS int
	DurationMS         int
	BlocksOnTaskID     *string
	BlockedByQuota     bool
	Attempts           int
	MaxAttempts        int
	LastError          string
	Metadata           map[string]any
	TraceID            string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// SLARemaining returns how much time is left before the deadline (may be negative).
func (t PipelineTask) SLARemaining(now time.Time) time.Duration {
	return t.SLADeadline.Sub(now)
}

// SLABreached reports whether the deadline has already passed.
func (t PipelineTask) SLABreached(now time.Time) bool {
	return t.SLARemaining(now) < 0
}

// GoalOwnerType enumerates who a Goal belongs to.
type GoalOwnerType string

const (
	GoalOwnerUser GoalOwnerType = "user"
	GoalOwnerTeam GoalOwnerType = "team"
	GoalOwnerDept GoalOwnerType = "department"
	GoalOwnerOrg  GoalOwnerType = "organization"
)

// GoalType classifies the kind of goal.
type GoalType string

const (
	GoalTypeTask      GoalType = "task"
	GoalTypeProject   GoalType = "project"
	GoalTypeObjective GoalType = "objective"
	GoalTypePolicy    GoalType = "policy"
	GoalTypeResearch  GoalType = "research"
)

// GoalStatus is the Goal lifecycle state.
type GoalStatus string

const (
	GoalStatusProposed  GoalStatus = "proposed"
	GoalStatusActive    GoalStatus = "active"
	GoalStatusBlocked   GoalStatus = "blocked"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// Goal is the root of a hierarchical goal/node/edge graph.
type Goal struct {
	ID             string
	OrganizationID string
	Creator        string
	OwnerType      GoalOwnerType
	OwnerID        string
	Title          string
	Description    string
	GoalType       GoalType
	Status         GoalStatus
	Priority       int
	DueAt          *time.Time
	Confidence     float64
	Scope          Scope
	ScopeID        *string
	Tags           []string
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// GoalNodeType enumerates kinds of actionable GoalNode.
type GoalNodeType string

const (
	GoalNodeSubgoal   GoalNodeType = "subgoal"
	GoalNodeTask      GoalNodeType = "task"
	GoalNodeMilestone GoalNodeType = "milestone"
)

// GoalNodeStatus is the GoalNode lifecycle state.
type GoalNodeStatus string

const (
	GoalNodeTodo       GoalNodeStatus = "todo"
	GoalNodeInProgress GoalNodeStatus = "in_progress"
	GoalNodeBlocked    GoalNodeStatus = "blocked"
	GoalNodeDone       GoalNodeStatus = "done"
	GoalNodeCancelled  GoalNodeStatus = "cancelled"
)

// GoalNode is one node in a Goal's execution graph.
type GoalNode struct {
	ID              string
	GoalID          string
	ParentNodeID    *string
	NodeType        GoalNodeType
	Title           string
	Status          GoalNodeStatus
	Priority        int
	Assignees       []string
	Ordering        int
	ExpectedOutputs string
	SuccessCriteria string
	Blockers        map[string]any
	Confidence      float64
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// GoalEdgeType enumerates relations between GoalNodes.
type GoalEdgeType string

const (
	GoalEdgeDependsOn GoalEdgeType = "depends_on"
	GoalEdgeBlocks    GoalEdgeType = "blocks"
	GoalEdgeRelatedTo GoalEdgeType = "related_to"
)

// GoalEdge is a directed relation between two GoalNodes; (from,to,type) is unique.
type GoalEdge struct {
	FromNodeID string
	ToNodeID   string
	EdgeType   GoalEdgeType
}

// GoalMemoryLinkType enumerates what a memory contributes to a goal.
type GoalMemoryLinkType string

const (
	GoalLinkEvidence GoalMemoryLinkType = "evidence"
	GoalLinkProgress GoalMemoryLinkType = "progress"
	GoalLinkBlocker  GoalMemoryLinkType = "blocker"
	GoalLinkReference GoalMemoryLinkType = "reference"
)

// GoalLinkedBy enumerates who created a GoalMemoryLink.
type GoalLinkedBy string

const (
	GoalLinkedByAuto  GoalLinkedBy = "auto"
	GoalLinkedByUser  GoalLinkedBy = "user"
	GoalLinkedByAgent GoalLinkedBy = "agent"
)

// GoalMemoryLink connects a memory to a goal, unique on (org, goal, memory).
type GoalMemoryLink struct {
	ID         string
	GoalID     string
	MemoryID   string
	NodeID     *string
	LinkType   GoalMemoryLinkType
	LinkedBy   GoalLinkedBy
	Confidence float64
	CreatedAt  time.Time
}

// GoalActivityLog is an append-only per-goal audit event.
type GoalActivityLog struct {
	ID        string
	GoalID    string
	EventType string
	ActorID   string
	Details   map[string]any
	CreatedAt time.Time
}

// RolloutStatus is the PolicyVersion lifecycle state.
type RolloutStatus string

const (
	RolloutDraft      RolloutStatus = "draft"
	RolloutCanary     RolloutStatus = "canary"
	RolloutStaged     RolloutStatus = "staged"
	RolloutActive     RolloutStatus = "active"
	RolloutSuperseded RolloutStatus = "superseded"
	RolloutRolledBack RolloutStatus = "rolled_back"
)

// PolicyVersion is one versioned revision of a named policy.
type PolicyVersion struct {
	ID                string
	OrganizationID    string
	PolicyName        string
	Version           int
	RolloutStatus     RolloutStatus
	RolloutPercentage float64
	CanaryGroupIDs    []string
	PolicyConfig      map[string]any
	ValidationSchema  map[string]any
	SuccessCount      int
	FailureCount      int
	ErrorRate         float64
	ActivatedAt       *time.Time
	SupersededBy      *int
	RolledBackTo      *int
	CreatedAt         time.Time
}

// AuditEvent is one append-only row recording an authorization decision,
// mutation, or failure.
type AuditEvent struct {
	ID             string
	OrganizationID string
	ActorUserID    string
	TraceID        string
	Action         string
	ObjectType     string
	ObjectID       string
	Allowed        bool
	Method         string
	Reason         string
	Details        map[string]any
	CreatedAt      time.Time
}

// ExportJob tracks one export-to-object-store request.
type ExportJob struct {
	ID          string
	OrgID       string
	Kind        string // "memories", "goals", ...
	Format      string // "json", "markdown", "zip"
	Path        string
	RequestedBy string
	Status      string
	CreatedAt   time.Time
}

// MemoryGraphEdge is a directed-by-convention (memory_a < memory_b) relation
// between two memories, upserted by the GraphLinkingAgent side effect.
type MemoryGraphEdge struct {
	ID             string
	OrganizationID string
	MemoryA        string
	MemoryB        string
	Relation       string
	Confidence     float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MemoryTopic is one scope/scope_id-aware topic assignment for a memory,
// upserted by the TopicModelingAgent side effect.
type MemoryTopic struct {
	ID             string
	OrganizationID string
	MemoryID       string
	Scope          Scope
	ScopeID        *string
	Topic          string
	Weight         float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MemoryPattern is one detected recurring pattern for a memory, upserted by
// the PatternDetectionAgent side effect.
type MemoryPattern struct {
	ID             string
	OrganizationID string
	MemoryID       string
	PatternKey     string
	Details        map[string]any
	Confidence     float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FeedbackLearningConfig is the per-org tunable config the
// FeedbackLearningAgent side effect adjusts (stopwords, thresholds, weights).
type FeedbackLearningConfig struct {
	OrganizationID string
	Stopwords      []string
	Thresholds     map[string]any
	Weights        map[string]any
	UpdatedAt      time.Time
}

// LogseqExportRecord is the persisted record of one memory's Logseq export,
// upserted by the LogseqExportAgent side effect.
type LogseqExportRecord struct {
	ID             string
	OrganizationID string
	MemoryID       string
	FilePath       string
	ContentHash    string
	ExportedAt     time.Time
}
