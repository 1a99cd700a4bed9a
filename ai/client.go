package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskflow/domain"
)

const tracerName = "taskflow/ai"

// EmptyBoardSummary is returned for a board without tasks; no model call is
// made in that case.
const EmptyBoardSummary = "No tasks yet! Add a new task to get started and see your progress here."

// Client runs the task-oriented AI flows on top of a Model.
type Client struct {
	model    Model
	tracer   trace.Tracer
	maxTurns int
}

func NewClient(model Model) *Client {
	if model == nil {
		panic("ai.NewClient: model is nil")
	}
	return &Client{model: model, tracer: otel.Tracer(tracerName), maxTurns: 8}
}

func (c *Client) start(ctx context.Context, flow string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("ai.flow", flow))
	return c.tracer.Start(ctx, "ai."+flow, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, flow string, start time.Time, err error) {
	fields := log.Fields{"flow": flow, "duration_ms": float64(time.Since(start)) / float64(time.Millisecond)}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithFields(fields).WithError(err).Warn("ai flow failed")
	} else {
		span.SetStatus(codes.Ok, "")
		log.WithFields(fields).Debug("ai flow finished")
	}
	span.End()
}

// generateJSON asks for structured output and decodes it into dst.
func (c *Client) generateJSON(ctx context.Context, prompt string, schema *Schema, dst any) error {
	resp, err := c.model.Generate(ctx, Request{Messages: []Message{UserText(prompt)}, Schema: schema})
	if err != nil {
		return wrapCapability(err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return capabilityError("empty answer")
	}
	if err := sonic.ConfigStd.UnmarshalFromString(text, dst); err != nil {
		return fmt.Errorf("%w: malformed answer: %w", ErrCapability, err)
	}
	return nil
}

func wrapCapability(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCapability) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCapability, err)
}

func object(required []string, props map[string]*Schema) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

func priorityEnum() *Schema {
	return &Schema{Type: TypeString, Enum: []string{string(domain.PriorityHigh), string(domain.PriorityMedium), string(domain.PriorityLow)}}
}

func statusEnum() *Schema {
	out := &Schema{Type: TypeString}
	for _, s := range domain.Statuses {
		out.Enum = append(out.Enum, string(s))
	}
	return out
}

// GenerateDescription writes a description for a task title.
func (c *Client) GenerateDescription(ctx context.Context, title string) (desc string, err error) {
	const flow = "GenerateDescription"
	ctx, span := c.start(ctx, flow)
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	var out struct {
		Description string `json:"description"`
	}
	prompt := "You are an experienced project manager. Write a clear, helpful description for the task below that explains its purpose and scope.\n\nTask title: " + title
	if err := c.generateJSON(ctx, prompt, object([]string{"description"}, map[string]*Schema{
		"description": {Type: TypeString},
	}), &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Description) == "" {
		return "", capabilityError("missing description")
	}
	return out.Description, nil
}

// DeterminePriority infers a priority from a title and description.
func (c *Client) DeterminePriority(ctx context.Context, title, description string) (p domain.Priority, err error) {
	const flow = "DeterminePriority"
	ctx, span := c.start(ctx, flow)
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	var out struct {
		Priority string `json:"priority"`
	}
	prompt := "Decide the priority of this task: High, Medium or Low. When the description is short or missing, lean on the title; \"Fix critical login bug\" is High.\n\nTitle: " + title + "\nDescription: " + description
	if err := c.generateJSON(ctx, prompt, object([]string{"priority"}, map[string]*Schema{
		"priority": priorityEnum(),
	}), &out); err != nil {
		return "", err
	}
	p, perr := domain.ParsePriority(out.Priority)
	if perr != nil {
		return "", fmt.Errorf("%w: %w", ErrCapability, perr)
	}
	return p, nil
}

// GenerateSubtasks breaks a task into short actionable steps.
func (c *Client) GenerateSubtasks(ctx context.Context, title, description string) (subs []string, err error) {
	const flow = "GenerateSubtasks"
	ctx, span := c.start(ctx, flow)
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	var out struct {
		Subtasks []string `json:"subtasks"`
	}
	prompt := "Break the task below into smaller, actionable subtasks. Each subtask is a short phrase. If the description is thin, suggest general steps that fit the title.\n\nTitle: " + title + "\nDescription: " + description
	if err := c.generateJSON(ctx, prompt, object([]string{"subtasks"}, map[string]*Schema{
		"subtasks": {Type: TypeArray, Items: &Schema{Type: TypeString}},
	}), &out); err != nil {
		return nil, err
	}
	return cleanStrings(out.Subtasks), nil
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func imagePrompt(title string) string {
	return fmt.Sprintf("Create a clean, modern, professional illustration of this task for a project management app: %q. Do not include text or logos.", title)
}

// GenerateImage returns an illustration for the task as a data URI.
func (c *Client) GenerateImage(ctx context.Context, title string) (uri string, err error) {
	const flow = "GenerateImage"
	ctx, span := c.start(ctx, flow)
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())
	return c.image(ctx, title)
}

func (c *Client) image(ctx context.Context, title string) (string, error) {
	resp, err := c.model.Generate(ctx, Request{
		Messages:   []Message{UserText(imagePrompt(title))},
		Modalities: []string{ModalityText, ModalityImage},
	})
	if err != nil {
		return "", wrapCapability(err)
	}
	if resp.Media == nil || len(resp.Media.Data) == 0 {
		return "", capabilityError("no image was generated")
	}
	mime := resp.Media.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return dataURI(mime, resp.Media.Data), nil
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FullTask is a task fleshed out from its title.
type FullTask struct {
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
	Subtasks    []string        `json:"subtasks"`
	ImageURL    string          `json:"imageUrl"`
}

// GenerateFullTask produces details and an image for title. Both are
// requested concurrently and both must succeed.
func (c *Client) GenerateFullTask(ctx context.Context, title string) (full FullTask, err error) {
	const flow = "GenerateFullTask"
	ctx, span := c.start(ctx, flow)
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		details  FullTask
		image    string
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		var out struct {
			Description string   `json:"description"`
			Priority    string   `json:"priority"`
			Subtasks    []string `json:"subtasks"`
		}
		prompt := "Turn this task title into a complete task: write a detailed description, pick a priority (High, Medium or Low), and list 2 to 4 short actionable subtasks.\n\nTask title: " + title
		if err := c.generateJSON(ctx, prompt, object([]string{"description", "priority", "subtasks"}, map[string]*Schema{
			"description": {Type: TypeString},
			"priority":    priorityEnum(),
			"subtasks":    {Type: TypeArray, Items: &Schema{Type: TypeString}},
		}), &out); err != nil {
			fail(err)
			return
		}
		p, err := domain.ParsePriority(out.Priority)
		if err != nil {
			fail(fmt.Errorf("%w: %w", ErrCapability, err))
			return
		}
		details = FullTask{Description: out.Description, Priority: p, Subtasks: cleanStrings(out.Subtasks)}
	}()
	go func() {
		defer wg.Done()
		uri, err := c.image(ctx, title)
		if err != nil {
			fail(err)
			return
		}
		image = uri
	}()
	wg.Wait()

	if firstErr != nil {
		return FullTask{}, firstErr
	}
	details.ImageURL = image
	return details, nil
}

// ParsedTask is a task extracted from free text. Priority is empty and
// DueDate nil when the text didn't say.
type ParsedTask struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Priority    domain.Priority `json:"priority,omitempty"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
}

// ParseTask turns a sentence such as "call the bank tomorrow, urgent" into
// task fields. Relative dates are resolved against now.
func (c *Client) ParseTask(ctx context.Context, text string, now time.Time) (parsed ParsedTask, err error) {
	const flow = "ParseTask"
	ctx, span := c.start(ctx, flow)
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	var out struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		DueDate     string `json:"dueDate"`
	}
	prompt := "Extract a task from the user's text.\nCurrent date: " + now.Format(domain.DayLayout) + `
Return:
- a concise title
- a description, only if the text gives one
- the priority (High, Medium or Low) if stated or clearly implied ("urgent" means High), otherwise leave it empty
- the due date as YYYY-MM-DD, resolving relative dates such as "tomorrow" or "next Friday" from the current date

User text: "` + text + `"`
	if err := c.generateJSON(ctx, prompt, object([]string{"title"}, map[string]*Schema{
		"title":       {Type: TypeString},
		"description": {Type: TypeString},
		"priority":    priorityEnum(),
		"dueDate":     {Type: TypeString, Description: "YYYY-MM-DD"},
	}), &out); err != nil {
		return ParsedTask{}, err
	}
	parsed.Title = strings.TrimSpace(out.Title)
	if parsed.Title == "" {
		return ParsedTask{}, capabilityError("missing title")
	}
	parsed.Description = strings.TrimSpace(out.Description)
	if strings.TrimSpace(out.Priority) != "" {
		p, perr := domain.ParsePriority(out.Priority)
		if perr != nil {
			return ParsedTask{}, fmt.Errorf("%w: %w", ErrCapability, perr)
		}
		parsed.Priority = p
	}
	if ds := strings.TrimSpace(out.DueDate); ds != "" {
		d, derr := domain.ParseDay(ds, now.Location())
		if derr != nil {
			return ParsedTask{}, fmt.Errorf("%w: bad due date %q", ErrCapability, ds)
		}
		parsed.DueDate = &d
	}
	return parsed, nil
}

// TaskInfo is the slice of a task the prioritizer looks at.
type TaskInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// PriorityAssignment is one answer of PrioritizeTasks.
type PriorityAssignment struct {
	ID       string          `json:"id"`
	Priority domain.Priority `json:"priority"`
}

// PrioritizeTasks assigns a priority to every task. An empty input returns
// an empty result without calling the model.
func (c *Client) PrioritizeTasks(ctx context.Context, tasks []TaskInfo) (out []PriorityAssignment, err error) {
	if len(tasks) == 0 {
		return []PriorityAssignment{}, nil
	}
	const flow = "PrioritizeTasks"
	ctx, span := c.start(ctx, flow, attribute.Int("ai.tasks", len(tasks)))
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	var b strings.Builder
	b.WriteString("Prioritize the tasks below. Look for words that signal urgency or importance (\"bug\", \"urgent\", \"critical\", \"ASAP\") versus ones that don't (\"plan\", \"research\", \"later\"). Give every task a priority of High, Medium or Low and return the whole list.\n\nTasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- ID: %s, Title: %q, Description: %q\n", t.ID, t.Title, t.Description)
	}
	var resp struct {
		PrioritizedTasks []struct {
			ID       string `json:"id"`
			Priority string `json:"priority"`
		} `json:"prioritizedTasks"`
	}
	if err := c.generateJSON(ctx, b.String(), object([]string{"prioritizedTasks"}, map[string]*Schema{
		"prioritizedTasks": {Type: TypeArray, Items: object([]string{"id", "priority"}, map[string]*Schema{
			"id":       {Type: TypeString},
			"priority": priorityEnum(),
		})},
	}), &resp); err != nil {
		return nil, err
	}
	out = make([]PriorityAssignment, 0, len(resp.PrioritizedTasks))
	for _, r := range resp.PrioritizedTasks {
		p, perr := domain.ParsePriority(r.Priority)
		if perr != nil {
			return nil, fmt.Errorf("%w: task %s: %w", ErrCapability, r.ID, perr)
		}
		out = append(out, PriorityAssignment{ID: r.ID, Priority: p})
	}
	return out, nil
}

// DashboardSummary writes a short encouraging summary of the board.
func (c *Client) DashboardSummary(ctx context.Context, st domain.Stats) (summary string, err error) {
	if st.Total == 0 {
		return EmptyBoardSummary, nil
	}
	const flow = "DashboardSummary"
	ctx, span := c.start(ctx, flow)
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	prompt := fmt.Sprintf(`You are a friendly productivity assistant. Write a 2 to 3 sentence summary of the user's progress from these numbers. Stay positive, even about overdue work.

- Total tasks: %d
- Completed tasks: %d
- Overdue tasks: %d
- Tasks due in the next 7 days: %d`, st.Total, st.Completed, st.Overdue, st.Upcoming)
	var out struct {
		Summary string `json:"summary"`
	}
	if err := c.generateJSON(ctx, prompt, object([]string{"summary"}, map[string]*Schema{
		"summary": {Type: TypeString},
	}), &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", capabilityError("missing summary")
	}
	return out.Summary, nil
}

// AudioSummary reads summary aloud and returns it as a WAV data URI.
func (c *Client) AudioSummary(ctx context.Context, summary string) (uri string, err error) {
	const flow = "AudioSummary"
	ctx, span := c.start(ctx, flow)
	defer func(t time.Time) { finish(span, flow, t, err) }(time.Now())

	resp, err := c.model.Generate(ctx, Request{
		Messages:   []Message{UserText(summary)},
		Modalities: []string{ModalityAudio},
		Voice:      DefaultVoice,
	})
	if err != nil {
		return "", wrapCapability(err)
	}
	if resp.Media == nil || len(resp.Media.Data) == 0 {
		return "", capabilityError("no audio returned")
	}
	audio := resp.Media.Data
	if !strings.Contains(resp.Media.MimeType, "wav") {
		audio = EncodeWAV(audio, pcmSampleRate, pcmChannels, pcmBitsPerSample)
	}
	return dataURI("audio/wav", audio), nil
}
