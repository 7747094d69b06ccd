package curate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lnkbike/crashes/internal/model"
)

// ReviewSummary reports what happened during an interactive session
type ReviewSummary struct {
	Classified int
	Skipped    int
	Quit       bool
}

// Reviewer walks an operator through pending candidates one at a time
type Reviewer struct {
	curator *Curator
	save    func() error
	in      *bufio.Reader
	out     io.Writer
	Color   bool // Highlight keywords with ANSI escapes
	Width   int  // Wrap width for the narrative
}

// NewReviewer creates a reviewer. save is called after every answer so
// an interrupted session loses nothing.
func NewReviewer(c *Curator, save func() error, in io.Reader, out io.Writer) *Reviewer {
	return &Reviewer{
		curator: c,
		save:    save,
		in:      bufio.NewReader(in),
		out:     out,
		Width:   72,
	}
}

// Review presents up to limit pending candidates (all when limit <= 0)
func (r *Reviewer) Review(ctx context.Context, limit int) (ReviewSummary, error) {
	var summary ReviewSummary
	pending := r.curator.Pending(limit)
	if len(pending) == 0 {
		fmt.Fprintln(r.out, "Nothing to review.")
		return summary, nil
	}

	for i, rec := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		r.show(rec, i+1, len(pending))
		suggestion, _ := r.curator.Suggest(ctx, rec)

		cat, action, err := r.ask(suggestion)
		if err != nil {
			return summary, err
		}
		switch action {
		case actionQuit:
			summary.Quit = true
			return summary, nil
		case actionSkip:
			summary.Skipped++
			continue
		}

		if err := r.curator.Classify(rec.CaseNo, cat, false); err != nil {
			return summary, err
		}
		if err := r.save(); err != nil {
			return summary, fmt.Errorf("save curation: %w", err)
		}
		summary.Classified++
		fmt.Fprintln(r.out)
	}
	return summary, nil
}

type action int

const (
	actionClassify action = iota
	actionSkip
	actionQuit
)

func (r *Reviewer) show(rec *model.Report, n, total int) {
	showReport(r.out, rec, n, total, r.Color, r.Width)
}

func showReport(out io.Writer, rec *model.Report, n, total int, color bool, width int) {
	date := "unknown date"
	if rec.Date != nil {
		date = rec.Date.String()
	}
	header := fmt.Sprintf("%-10s %50s   [%d/%d]", rec.CaseNo, date, n, total)
	if color {
		header = "\033[1;31m" + header + "\033[0m"
	}
	fmt.Fprintln(out, header)
	if rec.Location != nil {
		fmt.Fprintf(out, "Location: %s\n", *rec.Location)
	}

	mark := func(s string) string { return "*" + s + "*" }
	if color {
		mark = func(s string) string { return "\033[1;32m" + s + "\033[0m" }
	}
	fmt.Fprintln(out, Highlight(wrap(rec.ReportText, width), mark))
}

func (r *Reviewer) ask(suggestion model.Category) (model.Category, action, error) {
	prompt := "Status [" + choices() + "]: "
	if suggestion != "" {
		prompt = fmt.Sprintf("Status [%s, default=%s] ", choices(), suggestion.Key())
	}

	for {
		ans, ok, err := readAnswer(r.in, r.out, prompt)
		if err != nil || !ok {
			return "", actionQuit, err
		}
		if ans == "" && suggestion != "" {
			return suggestion, actionClassify, nil
		}
		switch ans {
		case "K":
			return "", actionSkip, nil
		case "Q":
			return "", actionQuit, nil
		}
		if cat, ok := model.CategoryFromKey(ans); ok {
			return cat, actionClassify, nil
		}
		fmt.Fprint(r.out, help())
	}
}

// readAnswer prompts once and returns the upper-cased answer. ok is false
// when input ended without an answer.
func readAnswer(in *bufio.Reader, out io.Writer, prompt string) (string, bool, error) {
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", false, fmt.Errorf("read answer: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			return "", false, nil
		}
	}
	return strings.ToUpper(strings.TrimSpace(line)), true, nil
}

func choices() string {
	keys := make([]string, 0, len(model.Categories)+3)
	for _, c := range model.Categories {
		keys = append(keys, c.Key())
	}
	keys = append(keys, "K", "Q", "?")
	return strings.Join(keys, "/")
}

func help() string {
	var sb strings.Builder
	for _, c := range model.Categories {
		fmt.Fprintf(&sb, "%s: %s\n", c.Key(), c.Description())
	}
	sb.WriteString("K: Skip for now\nQ: Quit\n?: Help\n")
	return sb.String()
}

// wrap fills text to width columns on word boundaries
func wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 || width <= 0 {
		return text
	}
	var sb strings.Builder
	col := 0
	for i, w := range words {
		if i > 0 {
			if col+1+len(w) > width {
				sb.WriteByte('\n')
				col = 0
			} else {
				sb.WriteByte(' ')
				col++
			}
		}
		sb.WriteString(w)
		col += len(w)
	}
	return sb.String()
}
