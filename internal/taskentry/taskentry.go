// Package taskentry parses quick-capture task lines into structured entries
// and renders them as markdown documents with YAML frontmatter.
//
// A capture line is free text with inline markers:
//
//	Buy milk #errands @store !high due:tomorrow every:week
//
// Everything that is not a marker becomes the title.
package taskentry

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrEmptyTitle is returned when a capture line contains markers only.
var ErrEmptyTitle = errors.New("taskentry: entry has no title")

// Entry is a parsed quick-capture line.
type Entry struct {
	Title     string
	Status    string
	Priority  string
	Due       string
	Scheduled string
	Repeat    string
	Tags      []string
	Contexts  []string
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Parse tokenizes a capture line. Relative dates (today, tomorrow, +Nd) are
// resolved against now.
func Parse(line string, now time.Time) (*Entry, error) {
	e := &Entry{}
	var title []string

	for _, tok := range strings.Fields(line) {
		switch {
		case strings.HasPrefix(tok, "#") && len(tok) > 1:
			e.Tags = appendUnique(e.Tags, strings.ToLower(tok[1:]))
		case strings.HasPrefix(tok, "@") && len(tok) > 1:
			e.Contexts = appendUnique(e.Contexts, strings.ToLower(tok[1:]))
		case strings.HasPrefix(tok, "!") && len(tok) > 1:
			e.Priority = strings.ToLower(tok[1:])
		case strings.HasPrefix(tok, "due:"):
			d, err := resolveDate(tok[len("due:"):], now)
			if err != nil {
				return nil, err
			}
			e.Due = d
		case strings.HasPrefix(tok, "on:"):
			d, err := resolveDate(tok[len("on:"):], now)
			if err != nil {
				return nil, err
			}
			e.Scheduled = d
		case strings.HasPrefix(tok, "every:"):
			e.Repeat = strings.ToLower(tok[len("every:"):])
		default:
			title = append(title, tok)
		}
	}

	e.Title = strings.Join(title, " ")
	if e.Title == "" {
		return nil, ErrEmptyTitle
	}
	return e, nil
}

// resolveDate turns a date token into a YYYY-MM-DD key.
func resolveDate(tok string, now time.Time) (string, error) {
	switch strings.ToLower(tok) {
	case "today":
		return now.Format("2006-01-02"), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02"), nil
	}
	if strings.HasPrefix(tok, "+") && strings.HasSuffix(tok, "d") {
		n, err := strconv.Atoi(tok[1 : len(tok)-1])
		if err == nil && n >= 0 {
			return now.AddDate(0, 0, n).Format("2006-01-02"), nil
		}
	}
	if t, err := time.Parse("2006-01-02", tok); err == nil {
		return t.Format("2006-01-02"), nil
	}
	return "", fmt.Errorf("taskentry: unrecognized date %q", tok)
}

// Filename derives a slug filename from the entry title.
func (e *Entry) Filename() string {
	slug := slugRe.ReplaceAllString(strings.ToLower(e.Title), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "task"
	}
	return slug + ".md"
}

// Document renders the entry as a markdown document with YAML frontmatter.
// markerTag is always included in the tags list so the result classifies as
// a task under the configured marker.
func (e *Entry) Document(markerTag, defaultStatus string, now time.Time) ([]byte, error) {
	status := e.Status
	if status == "" {
		status = defaultStatus
	}
	tags := appendUnique(append([]string(nil), e.Tags...), markerTag)

	fm := map[string]interface{}{
		"title":   e.Title,
		"status":  status,
		"tags":    tags,
		"created": now.Format("2006-01-02"),
	}
	if e.Priority != "" {
		fm["priority"] = e.Priority
	}
	if e.Due != "" {
		fm["due"] = e.Due
	}
	if e.Scheduled != "" {
		fm["scheduled"] = e.Scheduled
	}
	if e.Repeat != "" {
		fm["repeat"] = e.Repeat
	}
	if len(e.Contexts) > 0 {
		fm["contexts"] = e.Contexts
	}

	enc, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("taskentry: marshal frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(enc)
	b.WriteString("---\n\n# ")
	b.WriteString(e.Title)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
