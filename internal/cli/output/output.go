// Package output печатает ответы blogctl таблицей или JSON.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/UkralStul/blog-service/internal/domain"
)

// Table - табличное представление ответа.
type Table struct {
	Header []string
	Rows   [][]string
}

// DefaultFormat: таблица для терминала, JSON для пайпов.
func DefaultFormat() string {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return "table"
	}
	return "json"
}

// Print выводит payload в формате format. table может быть nil,
// тогда табличный формат откатывается на JSON.
func Print(w io.Writer, format string, payload any, table *Table) error {
	format = strings.TrimSpace(strings.ToLower(format))
	if format == "" {
		format = DefaultFormat()
	}

	switch format {
	case "json":
		return printJSON(w, payload)
	case "table":
		if table == nil {
			return printJSON(w, payload)
		}
		return printTable(w, table)
	case "quiet":
		if table == nil {
			return printJSON(w, payload)
		}
		for _, row := range table.Rows {
			if len(row) > 0 {
				fmt.Fprintln(w, row[0])
			}
		}
		return nil
	default:
		return errors.New("invalid --format value")
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printTable(w io.Writer, t *Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// === Tables ===

func Posts(posts []*domain.Post) *Table {
	t := &Table{Header: []string{"ID", "SLUG", "TITLE", "AUTHOR", "STATUS", "CREATED"}}
	for _, p := range posts {
		status := "draft"
		if p.Published {
			status = "published"
		}
		t.Rows = append(t.Rows, []string{p.ID, p.Slug, truncate(p.Title, 40), p.Author.Name, status, date(p.CreatedAt)})
	}
	return t
}

func Comments(comments []*domain.Comment) *Table {
	t := &Table{Header: []string{"ID", "PARENT", "AUTHOR", "LIKES", "APPROVED", "CONTENT"}}
	for _, c := range comments {
		parent := "-"
		if c.ParentID != nil {
			parent = *c.ParentID
		}
		t.Rows = append(t.Rows, []string{
			c.ID, parent, c.Author.Name, strconv.Itoa(c.Likes), strconv.FormatBool(c.Approved), truncate(c.Content, 60),
		})
	}
	return t
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}
