package cluster

// Status is the externally visible lifecycle state of a cluster.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusStructuring      Status = "STRUCTURING"
	StatusConfiguring      Status = "CONFIGURING"
	StatusGenerating       Status = "GENERATING"
	StatusGenerated        Status = "GENERATED"
	StatusGenerationFailed Status = "GENERATION_FAILED"
	StatusBuilding         Status = "BUILDING"
	StatusBuilt            Status = "BUILT"
	StatusBuildFailed      Status = "BUILD_FAILED"
)

func (s Status) AbleToGenerate() bool {
	return s == StatusConfiguring || s == StatusGenerationFailed
}

func (s Status) AbleToBuild() bool {
	return s == StatusGenerated || s == StatusBuildFailed
}

// Locked reports whether the status belongs to a phase that holds the job lock.
func (s Status) Locked() bool {
	return s == StatusGenerating || s == StatusBuilding
}

func (s Status) String() string { return string(s) }

// Intent is the content purpose of a page.
type Intent string

const (
	IntentCommercial    Intent = "commercial"
	IntentInformational Intent = "informational"
	IntentNavigational  Intent = "navigational"
)

var Intents = []Intent{IntentCommercial, IntentInformational, IntentNavigational}

func (i Intent) Valid() bool {
	switch i {
	case IntentCommercial, IntentInformational, IntentNavigational:
		return true
	}
	return false
}

const (
	PageStatusDraft     = "draft"
	PageStatusGenerated = "generated"
)

const (
	ProjectTypeDefault = "default"
	ProjectTypeCreated = "created"
	ProjectTypeCustom  = "custom"
)
