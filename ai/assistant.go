package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"taskflow/domain"
)

const assistantSystem = `You are a friendly assistant that helps the user manage their tasks.
- Use the tools to list, create and update tasks; don't invent tasks you haven't seen.
- Summarize listed tasks briefly.
- After creating or updating a task, confirm what you did.
- If several tasks match a title, ask the user which one they mean.`

// AssistantResult is the assistant's reply and the task list after every
// tool call has been applied.
type AssistantResult struct {
	Response string        `json:"response"`
	Tasks    []domain.Task `json:"tasks"`
}

var assistantTools = []Tool{
	{
		Name:        "listTasks",
		Description: "List tasks, optionally filtered by status, priority or a search query over titles and descriptions.",
		Parameters: object(nil, map[string]*Schema{
			"status":   statusEnum(),
			"priority": priorityEnum(),
			"query":    {Type: TypeString, Description: "Keyword to look for in titles and descriptions."},
		}),
	},
	{
		Name:        "createTask",
		Description: "Create a new task. Only the title is required.",
		Parameters: object([]string{"title"}, map[string]*Schema{
			"title":       {Type: TypeString},
			"description": {Type: TypeString},
			"priority":    priorityEnum(),
			"status":      statusEnum(),
		}),
	},
	{
		Name:        "updateTaskStatus",
		Description: "Change the status of an existing task found by title or id. Prefer the title when known.",
		Parameters: object([]string{"status"}, map[string]*Schema{
			"taskTitle": {Type: TypeString},
			"taskId":    {Type: TypeString},
			"status":    statusEnum(),
		}),
	},
}

// toolbox applies assistant tool calls to a private copy of the board.
type toolbox struct {
	tasks []domain.Task
}

func stringArg(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (tb *toolbox) call(tc ToolCall) any {
	switch tc.Name {
	case "listTasks":
		return tb.list(tc.Args)
	case "createTask":
		return tb.create(tc.Args)
	case "updateTaskStatus":
		return tb.updateStatus(tc.Args)
	}
	return fmt.Sprintf("Error: unknown tool %q.", tc.Name)
}

type taskSummary struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Status   domain.Status   `json:"status"`
	Priority domain.Priority `json:"priority"`
}

func (tb *toolbox) list(args map[string]any) []taskSummary {
	status := stringArg(args, "status")
	priority := stringArg(args, "priority")
	query := strings.ToLower(stringArg(args, "query"))
	out := []taskSummary{}
	for _, t := range tb.tasks {
		if status != "" && !strings.EqualFold(string(t.Status), status) {
			continue
		}
		if priority != "" && !strings.EqualFold(string(t.Priority), priority) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(t.Title), query) && !strings.Contains(strings.ToLower(t.Description), query) {
			continue
		}
		out = append(out, taskSummary{ID: t.ID, Title: t.Title, Status: t.Status, Priority: t.Priority})
	}
	return out
}

func (tb *toolbox) create(args map[string]any) any {
	title := stringArg(args, "title")
	if title == "" {
		return "Error: a title is required to create a task."
	}
	t := domain.Task{
		ID:          domain.NewTaskID(),
		Title:       title,
		Description: stringArg(args, "description"),
		Priority:    domain.PriorityMedium,
		Status:      domain.StatusToDo,
		Subtasks:    []domain.Subtask{},
	}
	if p, err := domain.ParsePriority(stringArg(args, "priority")); err == nil {
		t.Priority = p
	}
	if s, err := domain.ParseStatus(stringArg(args, "status")); err == nil {
		t.Status = s
	}
	tb.tasks = append(tb.tasks, t)
	return t
}

func (tb *toolbox) updateStatus(args map[string]any) string {
	status, err := domain.ParseStatus(stringArg(args, "status"))
	if err != nil {
		return "Error: status must be one of To Do, In Progress or Done."
	}
	id := stringArg(args, "taskId")
	title := stringArg(args, "taskTitle")
	idx := -1
	for i, t := range tb.tasks {
		if (id != "" && t.ID == id) || (id == "" && title != "" && strings.EqualFold(t.Title, title)) {
			idx = i
			break
		}
	}
	if idx < 0 {
		ident := id
		if ident == "" {
			ident = title
		}
		return fmt.Sprintf("Error: Task with identifier %q not found.", ident)
	}
	tb.tasks[idx].Status = status
	return fmt.Sprintf("Successfully updated task %q to %s.", tb.tasks[idx].Title, status)
}

// Assistant answers a free-form request about the board. Tool calls work
// on a copy of tasks; the caller decides whether to adopt the returned list.
func (c *Client) Assistant(ctx context.Context, query string, tasks []domain.Task) (res AssistantResult, err error) {
	const flow = "Assistant"
	ctx, span := c.start(ctx, flow, attribute.Int("ai.tasks", len(tasks)))
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	tb := &toolbox{tasks: make([]domain.Task, len(tasks))}
	for i, t := range tasks {
		tb.tasks[i] = t.Clone()
	}
	msgs := []Message{UserText(query)}
	for turn := 0; turn < c.maxTurns; turn++ {
		resp, err := c.model.Generate(ctx, Request{System: assistantSystem, Messages: msgs, Tools: assistantTools})
		if err != nil {
			return AssistantResult{}, wrapCapability(err)
		}
		if len(resp.ToolCalls) == 0 {
			text := strings.TrimSpace(resp.Text)
			if text == "" {
				return AssistantResult{}, capabilityError("assistant returned an empty reply")
			}
			span.SetAttributes(attribute.Int("ai.turns", turn+1))
			return AssistantResult{Response: text, Tasks: tb.tasks}, nil
		}
		msgs = append(msgs, Message{Role: RoleModel, Text: resp.Text, ToolCalls: resp.ToolCalls})
		results := make([]ToolResult, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			results = append(results, ToolResult{ID: tc.ID, Name: tc.Name, Result: tb.call(tc)})
		}
		msgs = append(msgs, Message{Role: RoleUser, ToolResults: results})
	}
	return AssistantResult{}, capabilityError("assistant did not finish within %d turns", c.maxTurns)
}
