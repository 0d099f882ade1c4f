package mcpserver

// TaskFormatContract describes the canonical Markdown task format that
// LLM consumers should follow when creating or updating task documents.
const TaskFormatContract = `# Dagaz Task Format Contract

Every task document stored in Dagaz MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED – used in lists and calendar
tags:                               # REQUIRED – must include the task marker tag
  - task
  - project-x
status: open                        # OPTIONAL – open | doing | done | cancelled
priority: normal                    # OPTIONAL – low | normal | high | urgent
due: 2025-01-15                     # OPTIONAL – ISO-8601 date
scheduled: 2025-01-10               # OPTIONAL – ISO-8601 date
repeat: weekly                      # OPTIONAL – recurring tasks are never overdue
contexts:                           # OPTIONAL – YAML list; @contexts also work inline
  - errands
---

Body text in standard Markdown. Inline #tags and @contexts in the body are
indexed alongside the frontmatter lists.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "```" + `---` + "```" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **The task marker tag is required.** Without it the document is indexed as
   a plain note (or not at all).
3. **Dates** are ISO-8601 (` + "`" + `YYYY-MM-DD` + "`" + `). A task with a past ` + "`" + `due` + "`" + ` (or
   ` + "`" + `scheduled` + "`" + ` when ` + "`" + `due` + "`" + ` is absent) and a non-completed status is overdue.
4. **Statuses and priorities** are lowercase. Unknown values fall back to the
   configured defaults.
5. **Tags and contexts** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `).
6. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
7. **Encoding** is UTF-8 with a trailing newline.

## Quick capture

The ` + "`" + `capture_task` + "`" + ` tool accepts a single free-text line instead of a full
document:

` + "```" + `
Buy milk #errands @store !high due:tomorrow every:week
` + "```" + `

- ` + "`" + `#word` + "`" + ` adds a tag, ` + "`" + `@word` + "`" + ` adds a context, ` + "`" + `!word` + "`" + ` sets the priority.
- ` + "`" + `due:` + "`" + ` and ` + "`" + `on:` + "`" + ` accept ` + "`" + `today` + "`" + `, ` + "`" + `tomorrow` + "`" + `, ` + "`" + `+Nd` + "`" + `, or ` + "`" + `YYYY-MM-DD` + "`" + `.
- Everything else becomes the title.

## Example

` + "```" + `markdown
---
title: Review quarterly report
tags:
  - task
  - work
status: doing
priority: high
due: 2025-02-01
---

# Review quarterly report

Check the revenue section with @finance before submitting.
` + "```" + `
`
