package geocode

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
	Resolved int
	Skipped  int
	Quit     bool
}

// Reviewer walks an operator through cases the automatic pass could not
// resolve, offering the normalized query as the default search
type Reviewer struct {
	resolver *Resolver
	save     func() error
	in       *bufio.Reader
	out      io.Writer
	Color    bool
}

// NewReviewer creates a reviewer. save is called after every decision.
func NewReviewer(r *Resolver, save func() error, in io.Reader, out io.Writer) *Reviewer {
	return &Reviewer{
		resolver: r,
		save:     save,
		in:       bufio.NewReader(in),
		out:      out,
	}
}

type outcome int

const (
	outcomeResolved outcome = iota
	outcomeSkipped
	outcomeQuit
)

// Review presents up to limit pending cases (all when limit <= 0)
func (rv *Reviewer) Review(ctx context.Context, force bool, limit int) (ReviewSummary, error) {
	var summary ReviewSummary
	pending := rv.resolver.Pending(force)
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	if len(pending) == 0 {
		fmt.Fprintln(rv.out, "Nothing to geocode.")
		return summary, nil
	}

	for i, p := range pending {
		rv.show(p, i+1, len(pending))
		result, err := rv.resolveOne(ctx, p)
		if err != nil {
			return summary, err
		}
		switch result {
		case outcomeQuit:
			summary.Quit = true
			return summary, nil
		case outcomeSkipped:
			if err := rv.resolver.Skip(p.Report.CaseNo); err != nil {
				return summary, err
			}
			summary.Skipped++
		case outcomeResolved:
			summary.Resolved++
		}
		if err := rv.save(); err != nil {
			return summary, fmt.Errorf("save locations: %w", err)
		}
		fmt.Fprintln(rv.out)
	}
	return summary, nil
}

func (rv *Reviewer) show(p Pending, n, total int) {
	date := "unknown date"
	if p.Report.Date != nil {
		date = p.Report.Date.String()
	}
	header := fmt.Sprintf("%-10s %-12s %37s   [%d/%d]", p.Report.CaseNo, p.Category, date, n, total)
	fmt.Fprintln(rv.out, rv.color(header, "1;31"))
	fmt.Fprintln(rv.out, truncate(p.Report.ReportText, 600))

	original := "(none)"
	if p.Report.Location != nil {
		original = *p.Report.Location
	}
	fmt.Fprintf(rv.out, "Original: %s\n", rv.color(original, "32"))
	fmt.Fprintf(rv.out, "Default:  %s\n", rv.color(p.Query, "32"))
}

func (rv *Reviewer) resolveOne(ctx context.Context, p Pending) (outcome, error) {
	query := p.Query
	operator := false
	var match *Match
	if p.Searchable {
		m, err := rv.search(ctx, query, false)
		if err != nil {
			return outcomeQuit, err
		}
		match = m
	}

	for {
		verb := "search"
		if match != nil {
			verb = "accept"
		}
		fmt.Fprintf(rv.out, "Enter to %s, 's' to skip, 'q' to quit, or enter address: ", verb)

		line, err := rv.in.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return outcomeQuit, fmt.Errorf("read answer: %w", err)
			}
			if strings.TrimSpace(line) == "" {
				return outcomeQuit, nil
			}
		}

		ans := strings.TrimSpace(line)
		switch strings.ToUpper(ans) {
		case "S":
			return outcomeSkipped, nil
		case "Q":
			return outcomeQuit, nil
		}

		if ans == "" {
			if match != nil {
				method := model.ResolutionAutomatic
				if operator {
					method = model.ResolutionManual
				}
				if _, err := rv.resolver.Accept(p.Report.CaseNo, query, *match, method); err != nil {
					return outcomeQuit, err
				}
				return outcomeResolved, nil
			}
			if query == "" {
				continue
			}
		} else {
			query = ans
			operator = true
		}

		m, err := rv.search(ctx, query, operator)
		if err != nil {
			return outcomeQuit, err
		}
		match = m
	}
}

// search looks query up and prints the result. Only cancellation is
// returned as an error; a failed lookup yields a nil match.
func (rv *Reviewer) search(ctx context.Context, query string, manual bool) (*Match, error) {
	m, err := rv.resolver.Lookup(ctx, query, manual)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fmt.Fprintf(rv.out, "Error finding %s: %v\n", query, err)
		return nil, nil
	}
	address := m.Address
	if !rv.resolver.bounds.Contains(m.Latitude, m.Longitude) {
		address += " (outside the municipality)"
	}
	fmt.Fprintf(rv.out, "Address: %s\n", rv.color(address, "1;32"))
	return &m, nil
}

func (rv *Reviewer) color(s, code string) string {
	if !rv.Color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
