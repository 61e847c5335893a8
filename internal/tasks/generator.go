package tasks

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Category is the kind of work a template-generated task represents.
type Category string

const (
	CategoryResearch Category = "research"
	CategoryAnalyze  Category = "analyze"
	CategoryCreate   Category = "create"
	CategoryRefine   Category = "refine"
)

// Next returns the successor category: research -> analyze -> create ->
// refine -> refine.
func (c Category) Next() Category {
	switch c {
	case CategoryResearch:
		return CategoryAnalyze
	case CategoryAnalyze:
		return CategoryCreate
	default:
		return CategoryRefine
	}
}

// DefaultFollowUpProbability is the chance a completed task spawns follow-ups.
const DefaultFollowUpProbability = 0.3

// Initial task count bounds (inclusive).
const (
	MinInitialTasks = 5
	MaxInitialTasks = 8
)

const (
	resultExcerptLen   = 50
	defaultTopic       = "the objective"
	defaultTaskKeyword = "the task"
	previousFindings   = "previous findings"
)

var templates = map[Category][]string{
	CategoryResearch: {
		"Research {topic} and gather relevant information",
		"Find credible sources about {topic}",
		"Analyze current trends in {topic}",
		"Identify key stakeholders in {topic}",
	},
	CategoryAnalyze: {
		"Analyze the findings from {previous}",
		"Identify patterns and insights in {previous}",
		"Compare different approaches to {topic}",
		"Evaluate pros and cons of {topic}",
	},
	CategoryCreate: {
		"Create a draft outline for {topic}",
		"Generate initial ideas for {topic}",
		"Design a framework for {topic}",
		"Develop a strategy for {topic}",
	},
	CategoryRefine: {
		"Review and refine {previous}",
		"Optimize the approach to {topic}",
		"Enhance the quality of {previous}",
		"Polish and finalize {topic}",
	},
}

// fillerCategories are drawn from when padding the initial task list.
var fillerCategories = []Category{CategoryResearch, CategoryAnalyze, CategoryCreate}

var stopWords = []string{"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by"}

// Generator produces initial and follow-up tasks. Randomness, clock and id
// generation are injectable so tests can pin outcomes.
type Generator struct {
	mu             sync.Mutex
	rng            *rand.Rand
	followUpChance float64
	now            func() time.Time
	newID          func() string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRand sets the random source.
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) {
		g.rng = r
	}
}

// WithSeed seeds a deterministic PCG random source.
func WithSeed(seed uint64) GeneratorOption {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithFollowUpProbability overrides the follow-up chance (0 disables, 1 always).
func WithFollowUpProbability(p float64) GeneratorOption {
	return func(g *Generator) {
		g.followUpChance = p
	}
}

// WithClock sets the time source for CreatedAt.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

// WithIDFunc sets the task id generator.
func WithIDFunc(fn func() string) GeneratorOption {
	return func(g *Generator) {
		g.newID = fn
	}
}

// NewGenerator creates a generator with the given options.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		rng:            rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		followUpChance: DefaultFollowUpProbability,
		now:            time.Now,
		newID:          NewID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewID returns a fresh task id.
func NewID() string {
	return "task-" + uuid.NewString()
}

// Initial builds the starting task list for an objective: a breakdown task,
// three keyword-anchored tasks, then template fillers up to a random total
// between MinInitialTasks and MaxInitialTasks.
func (g *Generator) Initial(objective string) []Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	topic := defaultTopic
	if kw := Keywords(objective); len(kw) > 0 {
		topic = kw[0]
	}

	count := g.rng.IntN(MaxInitialTasks-MinInitialTasks+1) + MinInitialTasks

	out := make([]Task, 0, count)
	out = append(out,
		g.newTask(`Break down the objective: "`+objective+`"`, Level(10), "", nil),
		g.newTask("Research "+topic, Level(9), CategoryResearch, nil),
		g.newTask("Identify key requirements for "+topic, Level(8), CategoryResearch, nil),
		g.newTask("Analyze potential approaches to "+objective, Level(7), CategoryAnalyze, nil),
	)

	for i := len(out); i < count; i++ {
		category := fillerCategories[g.rng.IntN(len(fillerCategories))]
		desc := fill(g.pick(category), topic, previousFindings)
		out = append(out, g.newTask(desc, Level(10-i), category, nil))
	}
	return out
}

// FollowUps derives zero, one or two tasks from a completed task. The new
// tasks belong to the successor of the completed task's category.
func (g *Generator) FollowUps(done Task, result, objective string) []Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rng.Float64() >= g.followUpChance {
		return nil
	}

	n := 2
	if g.rng.Float64() < 0.5 {
		n = 1
	}

	topic := defaultTaskKeyword
	if kw := Keywords(done.Description); len(kw) > 0 {
		topic = kw[0]
	}
	previous := fmt.Sprintf("%s (Result: %s...)", done.Description, truncate(result, resultExcerptLen))

	priority := done.Priority.Value() - 1
	if strings.Contains(strings.ToLower(objective), "urgent") {
		priority++
	}

	next := Classify(done.Description).Next()
	out := make([]Task, 0, n)
	for range n {
		desc := fill(g.pick(next), topic, previous)
		out = append(out, g.newTask(desc, Level(priority), next, []string{done.ID}))
	}
	return out
}

func (g *Generator) pick(c Category) string {
	list := templates[c]
	return list[g.rng.IntN(len(list))]
}

func (g *Generator) newTask(desc string, p Priority, c Category, deps []string) Task {
	return Task{
		ID:           g.newID(),
		Title:        desc,
		Description:  desc,
		Status:       StatusPending,
		Priority:     p,
		Category:     c,
		CreatedAt:    g.now(),
		Dependencies: deps,
	}
}

// Keywords returns up to three lower-cased words longer than three
// characters that are not stop-words, in order of appearance.
func Keywords(text string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(w) <= 3 || slices.Contains(stopWords, w) {
			continue
		}
		out = append(out, w)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// Classify infers a task's category from keywords in its description.
func Classify(description string) Category {
	lower := strings.ToLower(description)
	switch {
	case containsAny(lower, "research", "find", "gather"):
		return CategoryResearch
	case containsAny(lower, "analyze", "evaluate", "compare"):
		return CategoryAnalyze
	case containsAny(lower, "create", "generate", "design"):
		return CategoryCreate
	case containsAny(lower, "refine", "review", "polish"):
		return CategoryRefine
	default:
		return CategoryResearch
	}
}

// Templates returns the template strings for a category.
func Templates(c Category) []string {
	return slices.Clone(templates[c])
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func fill(template, topic, previous string) string {
	s := strings.Replace(template, "{topic}", topic, 1)
	return strings.Replace(s, "{previous}", previous, 1)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
