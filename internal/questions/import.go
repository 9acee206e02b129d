// Package questions loads exam questions from the review center's JSON export.
package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/premierreview/reviewbot/internal/models"
)

// ErrUnexpectedShape is returned when the document holds no "data" list.
var ErrUnexpectedShape = errors.New("expected a \"data\" list in an object or as the last element of a list")

// courseCategories maps export course names to question categories.
var courseCategories = map[string]models.Category{
	"Political Law":           models.CategoryPoliticalLaw,
	"Criminal Law":            models.CategoryCriminalLaw,
	"Commercial Law":          models.CategoryCommercialLaw,
	"Mercantile Law":          models.CategoryCommercialLaw,
	"Taxation":                models.CategoryTaxLaw,
	"Taxation Law":            models.CategoryTaxLaw,
	"Remedial Law":            models.CategoryRemedialLaw,
	"Legal & Judicial Ethics": models.CategoryEthics,
	"Legal Ethics":            models.CategoryEthics,
	"Civil Law":               models.CategoryCivilLaw,
	"Labor Law":               models.CategoryLaborLaw,
}

// Store is where imported questions are written.
type Store interface {
	CreateQuestion(ctx context.Context, q models.Question) (models.Question, error)
}

// Entry is one question record of the export.
type Entry struct {
	Question   string `json:"q_question"`
	Answer     string `json:"q_answer"`
	CourseName string `json:"course_name"`
}

// Skipped is an entry that was not imported, with the reason.
type Skipped struct {
	Entry  Entry  `json:"entry"`
	Reason string `json:"reason"`
}

// Result summarizes an import run.
type Result struct {
	Imported int       `json:"imported"`
	Skipped  []Skipped `json:"skipped,omitempty"`
}

// CategoryFor returns the category for an export course name.
func CategoryFor(courseName string) (models.Category, bool) {
	c, ok := courseCategories[strings.TrimSpace(courseName)]
	return c, ok
}

// Import reads a questions export from r and stores every well-formed entry.
// Malformed entries and unmapped course names are skipped and reported.
func Import(ctx context.Context, st Store, r io.Reader) (Result, error) {
	entries, err := decode(r)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" || strings.TrimSpace(e.CourseName) == "" {
			res.Skipped = append(res.Skipped, Skipped{Entry: e, Reason: "missing q_question, q_answer or course_name"})
			continue
		}
		category, ok := CategoryFor(e.CourseName)
		if !ok {
			slog.Warn("questions.Import: unmapped course", "course", e.CourseName)
			res.Skipped = append(res.Skipped, Skipped{Entry: e, Reason: fmt.Sprintf("unmapped course %q", e.CourseName)})
			continue
		}
		q, err := st.CreateQuestion(ctx, models.Question{
			Category:       category,
			QuestionText:   e.Question,
			ExpectedAnswer: e.Answer,
		})
		if err != nil {
			slog.Error("questions.Import: failed to store question", "course", e.CourseName, "error", err)
			res.Skipped = append(res.Skipped, Skipped{Entry: e, Reason: err.Error()})
			continue
		}
		slog.Debug("questions.Import: imported", "id", q.ID, "category", q.Category)
		res.Imported++
	}
	slog.Info("questions.Import: complete", "imported", res.Imported, "skipped", len(res.Skipped))
	return res, nil
}

type container struct {
	Data []Entry `json:"data"`
}

// decode accepts {"data":[...]} or [meta..., {"data":[...]}].
func decode(r io.Reader) ([]Entry, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode questions JSON: %w", err)
	}

	switch firstByte(raw) {
	case '{':
		return fromContainer(raw)
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to decode questions list: %w", err)
		}
		if len(list) == 0 {
			return nil, ErrUnexpectedShape
		}
		return fromContainer(list[len(list)-1])
	}
	return nil, ErrUnexpectedShape
}

func fromContainer(raw json.RawMessage) ([]Entry, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, ErrUnexpectedShape
	}
	data, ok := probe["data"]
	if !ok || firstByte(data) != '[' {
		return nil, ErrUnexpectedShape
	}
	var c container
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to decode question entries: %w", err)
	}
	return c.Data, nil
}

func firstByte(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
