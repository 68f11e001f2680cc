package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *WorkflowsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflows", c.handleCreateWorkflow)
	mux.HandleFunc("GET /api/workflows", c.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{workflow_id}", c.handleGetWorkflow)
}
func (c *ExecutionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflows/{workflow_id}/executions", c.handleStartExecution)
	mux.HandleFunc("GET /api/workflows/{workflow_id}/executions", c.handleListExecutions)
	mux.HandleFunc("GET /api/workflows/{workflow_id}/executions/{execution_id}", c.handleGetExecution)
	mux.HandleFunc("GET /api/workflows/{workflow_id}/executions/{execution_id}/events", c.handleGetExecutionEvents)
}
func (c *DeadLettersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/deadletters", c.handleListDeadLetters)
}
func (c *ExecutorsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/executors", c.handleGetExecutors)
}
