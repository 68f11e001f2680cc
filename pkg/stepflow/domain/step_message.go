package domain

// StepMessage asks the orchestrator to advance one execution by one step.
// Step is a snapshot used only to run the current step; sequencing always re-reads the definition.
type StepMessage struct {
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	StepIndex   int            `json:"step_index"`
	Step        StepDefinition `json:"step"`
}

func (m StepMessage) Key() ExecutionKey {
	return ExecutionKey{WorkflowID: m.WorkflowID, ExecutionID: m.ExecutionID}
}
