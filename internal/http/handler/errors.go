package handler

const (
	errInternalServer = "Internal server error"
	errTaskNotFound   = "Task not found"
	errDuplicateTask  = "Task with this name already exists"
	errNameRequired   = "Query parameter 'name' is required"
	errInvalidLimit   = "Query parameter 'limit' must be a positive integer"

	msgTaskDeleted = "Task deleted"
)
