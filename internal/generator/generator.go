package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"challenge-service/internal/domain"
	"github.com/google/uuid"
)

var styles = []string{
	"scenario-based",
	"conceptual",
	"definition-focused",
	"application-oriented",
	"compare-and-contrast",
	"cause-and-effect",
}

const systemPrompt = `You write multiple-choice quiz questions for a learning platform.
Every question must be answerable strictly from the lesson content you are given.
Respond with a JSON array only. Each element has the fields:
"question" (string), "options" (array of exactly 4 distinct strings),
"correctAnswer" (string, identical to one of the options), "topic" (string).`

// LLMGenerator produces questions through an external text-generation model.
type LLMGenerator struct {
	client Completer
	mu     sync.Mutex
	rnd    *rand.Rand
}

func NewLLMGenerator(client Completer) *LLMGenerator {
	return &LLMGenerator{
		client: client,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate returns exactly req.Count questions or a wrapped domain.ErrGenerationFailed.
func (g *LLMGenerator) Generate(ctx context.Context, req domain.GenerationRequest) ([]domain.Question, error) {
	count := req.Count
	if count <= 0 {
		count = domain.DefaultQuestionCount
	}
	if len(req.Lessons) == 0 {
		return nil, fmt.Errorf("%w: course has no lessons", domain.ErrGenerationFailed)
	}

	text, err := g.client.Complete(ctx, systemPrompt, g.buildPrompt(req, count))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	questions, err := parseQuestions(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if len(questions) < count {
		return nil, fmt.Errorf("%w: got %d of %d questions", domain.ErrGenerationFailed, len(questions), count)
	}
	return questions[:count], nil
}

func (g *LLMGenerator) buildPrompt(req domain.GenerationRequest, count int) string {
	g.mu.Lock()
	style := styles[g.rnd.Intn(len(styles))]
	g.mu.Unlock()
	nonce := uuid.NewString()

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", req.CourseTitle)
	fmt.Fprintf(&b, "Generate exactly %d %s questions.\n", count, style)
	fmt.Fprintf(&b, "Variation seed: %s (use it to vary wording and focus between requests).\n", nonce)
	if containsCode(req.Lessons) {
		b.WriteString("The content contains code: include at least one question about what a snippet from the lessons does.\n")
	}
	b.WriteString("\nLessons:\n")
	for i, lesson := range req.Lessons {
		fmt.Fprintf(&b, "\n## Lesson %d: %s\n%s\n", i+1, lesson.Title, strings.TrimSpace(lesson.Content))
		if len(lesson.Points) > 0 {
			b.WriteString("Key points:\n")
			for _, p := range lesson.Points {
				fmt.Fprintf(&b, "- %s\n", p)
			}
		}
	}
	return b.String()
}

var codeMarkers = []string{"```", "func ", "def ", "class ", "function ", "=>", "console.log", "import ", "#include", "print("}

// containsCode is a cheap heuristic for lesson content with source snippets.
func containsCode(lessons []domain.Lesson) bool {
	for _, lesson := range lessons {
		for _, marker := range codeMarkers {
			if strings.Contains(lesson.Content, marker) {
				return true
			}
		}
	}
	return false
}

type rawQuestion struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Text          string          `json:"text"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Correct       json.RawMessage `json:"correct_answer"`
	Answer        json.RawMessage `json:"answer"`
	Topic         string          `json:"topic"`
}

// parseQuestions decodes the first JSON value of the model output, either an
// array of questions or an object with a "questions" array. Any malformed
// element fails the whole set.
func parseQuestions(text string) ([]domain.Question, error) {
	payload, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var raws []rawQuestion
	if strings.HasPrefix(payload, "{") {
		var wrapper struct {
			Questions []rawQuestion `json:"questions"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapper); err != nil {
			return nil, fmt.Errorf("decode question object: %w", err)
		}
		raws = wrapper.Questions
	} else if err := json.Unmarshal([]byte(payload), &raws); err != nil {
		return nil, fmt.Errorf("decode question array: %w", err)
	}

	questions := make([]domain.Question, 0, len(raws))
	for i, raw := range raws {
		q, err := raw.toQuestion(i)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (r rawQuestion) toQuestion(index int) (domain.Question, error) {
	text := strings.TrimSpace(r.Question)
	if text == "" {
		text = strings.TrimSpace(r.Text)
	}
	if text == "" {
		return domain.Question{}, fmt.Errorf("missing question text")
	}
	if len(r.Options) != domain.OptionCount {
		return domain.Question{}, fmt.Errorf("expected %d options, got %d", domain.OptionCount, len(r.Options))
	}
	options := make([]string, len(r.Options))
	seen := make(map[string]struct{}, len(r.Options))
	for i, opt := range r.Options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return domain.Question{}, fmt.Errorf("empty option")
		}
		if _, dup := seen[opt]; dup {
			return domain.Question{}, fmt.Errorf("duplicate option %q", opt)
		}
		seen[opt] = struct{}{}
		options[i] = opt
	}

	answerRaw := r.CorrectAnswer
	if len(answerRaw) == 0 {
		answerRaw = r.Correct
	}
	if len(answerRaw) == 0 {
		answerRaw = r.Answer
	}
	correct, err := resolveAnswer(answerRaw, options)
	if err != nil {
		return domain.Question{}, err
	}

	return domain.Question{
		ID:            "q" + strconv.Itoa(index+1),
		Text:          text,
		Options:       options,
		CorrectAnswer: correct,
		Topic:         strings.TrimSpace(r.Topic),
	}, nil
}

// resolveAnswer accepts the answer as the option value, a letter (A-D) or a 0-based index.
func resolveAnswer(raw json.RawMessage, options []string) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing correct answer")
	}
	var index int
	if err := json.Unmarshal(raw, &index); err == nil {
		if index < 0 || index >= len(options) {
			return "", fmt.Errorf("correct answer index %d out of range", index)
		}
		return options[index], nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("correct answer is neither text nor index")
	}
	value = strings.TrimSpace(value)
	for _, opt := range options {
		if opt == value {
			return opt, nil
		}
	}
	if len(value) == 1 {
		letter := strings.ToUpper(value)[0]
		if letter >= 'A' && int(letter-'A') < len(options) {
			return options[letter-'A'], nil
		}
	}
	return "", fmt.Errorf("correct answer %q is not one of the options", value)
}
