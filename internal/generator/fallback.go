package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"challenge-service/internal/domain"
)

var fillerOptions = []string{
	"None of the above",
	"It is not covered in this course",
	"All of the above",
	"It depends on the runtime environment",
	"Only in legacy versions",
}

// FallbackGenerator derives questions from lesson titles and key points without any
// external call. Output is deterministic for a given request.
type FallbackGenerator struct{}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{}
}

type fact struct {
	lesson string
	text   string
}

func (FallbackGenerator) Generate(_ context.Context, req domain.GenerationRequest) ([]domain.Question, error) {
	count := req.Count
	if count <= 0 {
		count = domain.DefaultQuestionCount
	}
	facts := collectFacts(req.Lessons)
	if len(facts) == 0 {
		return nil, fmt.Errorf("%w: no lesson content to derive questions from", domain.ErrGenerationFailed)
	}

	questions := make([]domain.Question, 0, count)
	for i := 0; i < count; i++ {
		f := facts[i%len(facts)]
		options := distractorsFor(f, facts)
		pos := i % domain.OptionCount
		options = append(options[:pos], append([]string{f.text}, options[pos:]...)...)

		questions = append(questions, domain.Question{
			ID:            "q" + strconv.Itoa(i+1),
			Text:          fmt.Sprintf("Which of the following is a key point of the lesson %q?", f.lesson),
			Options:       options,
			CorrectAnswer: f.text,
			Topic:         f.lesson,
		})
	}
	return questions, nil
}

// collectFacts interleaves lessons so consecutive questions come from different lessons.
func collectFacts(lessons []domain.Lesson) []fact {
	perLesson := make([][]fact, 0, len(lessons))
	longest := 0
	for _, lesson := range lessons {
		var fs []fact
		for _, p := range lesson.Points {
			if p = strings.TrimSpace(p); p != "" {
				fs = append(fs, fact{lesson: lesson.Title, text: p})
			}
		}
		if len(fs) == 0 {
			if s := firstSentence(lesson.Content); s != "" {
				fs = append(fs, fact{lesson: lesson.Title, text: s})
			}
		}
		if len(fs) > longest {
			longest = len(fs)
		}
		perLesson = append(perLesson, fs)
	}

	var out []fact
	for i := 0; i < longest; i++ {
		for _, fs := range perLesson {
			if i < len(fs) {
				out = append(out, fs[i])
			}
		}
	}
	return out
}

// distractorsFor picks three wrong options: facts from other lessons first, then fillers.
func distractorsFor(f fact, facts []fact) []string {
	used := map[string]struct{}{f.text: {}}
	out := make([]string, 0, domain.OptionCount-1)
	add := func(s string) {
		if len(out) >= domain.OptionCount-1 || s == "" {
			return
		}
		if _, ok := used[s]; ok {
			return
		}
		used[s] = struct{}{}
		out = append(out, s)
	}
	for _, other := range facts {
		if other.lesson != f.lesson {
			add(other.text)
		}
	}
	for _, filler := range fillerOptions {
		add(filler)
	}
	return out
}

const maxSentenceRunes = 160

func firstSentence(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if i := strings.IndexAny(content, ".!?\n"); i > 0 {
		content = content[:i]
	}
	content = strings.TrimSpace(content)
	if runes := []rune(content); len(runes) > maxSentenceRunes {
		content = string(runes[:maxSentenceRunes])
	}
	return content
}
