package domain

import "time"

// SeedTasks returns the sample board shown on first run. The statuses are
// To Do, In Progress, In Progress, Done, To Do, in that order.
func SeedTasks(now time.Time) []Task {
	due := StartOfDay(now).AddDate(0, 0, 7)
	return []Task{
		{
			ID:          "task-1",
			Title:       "Design the new landing page",
			Description: "Create a modern and responsive design for the new landing page, focusing on user engagement and conversion.",
			Status:      StatusToDo,
			Priority:    PriorityHigh,
			DueDate:     &due,
			Subtasks: []Subtask{
				{ID: "subtask-1-1", Text: "Collect reference designs", Completed: true},
				{ID: "subtask-1-2", Text: "Draft wireframes"},
			},
		},
		{
			ID:          "task-2",
			Title:       "Develop user authentication",
			Description: "Implement secure user authentication using JWT and password hashing. Include sign-up, login, and logout functionality.",
			Status:      StatusInProgress,
			Priority:    PriorityHigh,
			Subtasks:    []Subtask{},
		},
		{
			ID:          "task-3",
			Title:       "Set up CI/CD pipeline",
			Description: "Configure a continuous integration and continuous deployment pipeline to automate testing and deployment.",
			Status:      StatusInProgress,
			Priority:    PriorityMedium,
			Subtasks:    []Subtask{},
		},
		{
			ID:          "task-4",
			Title:       "Write documentation for the API",
			Description: "Create comprehensive documentation for all API endpoints, including request/response examples.",
			Status:      StatusDone,
			Priority:    PriorityMedium,
			Subtasks:    []Subtask{},
		},
		{
			ID:          "task-5",
			Title:       "Update footer with new links",
			Description: "Add the new social media links and privacy policy link to the website footer.",
			Status:      StatusToDo,
			Priority:    PriorityLow,
			Subtasks:    []Subtask{},
		},
	}
}
