package models

// Task represents a reverse geocoding task: a row that has coordinates but no address yet.
type Task struct {
	ID          int         // ID is the unique identifier for the task.
	Coordinates Coordinates // Coordinates is the location to be turned into an address.
}
