package model

// TaskListOptions groups parameters for listing tasks with optional filters.
type TaskListOptions struct {
	State      *TaskState // Optional filter by lifecycle state
	EventLabel *string    // Optional filter by event label
	SortOrder  string     // Sort order: "asc", "desc" (default: "desc" by submitted_at)
	Limit      int        // Pagination limit
	Offset     int        // Pagination offset
}
