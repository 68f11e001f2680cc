package domain

import "errors"

var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrWorkflowExists    = errors.New("workflow already exists")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrExecutionExists   = errors.New("execution already exists")
	ErrInvalidInput      = errors.New("invalid input")
)
