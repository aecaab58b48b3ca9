package transcript

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/session"
)

// Format is an export file format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// ParseFormat accepts "md", "markdown", "txt" or "text".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown export format %q (want md or txt)", s)
}

// ExportFileName returns the default file name for an export taken at now,
// e.g. chat_2026-01-02_15-04-05.md.
func ExportFileName(format Format, now time.Time) string {
	return "chat_" + now.Format("2006-01-02_15-04-05") + "." + string(format)
}

// Export writes a stored conversation to w.
func (s *Store) Export(ctx context.Context, w io.Writer, sessionID string, format Format) error {
	sum, err := s.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	turns, err := s.Turns(ctx, sessionID)
	if err != nil {
		return err
	}
	return WriteTurns(w, sum, turns, format, s.now())
}

// WriteTurns renders turns in the given format.
func WriteTurns(w io.Writer, sum Summary, turns []session.Turn, format Format, now time.Time) error {
	var sb strings.Builder
	switch format {
	case FormatMarkdown:
		writeMarkdown(&sb, sum, turns, now)
	case FormatText:
		writeText(&sb, sum, turns, now)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeMarkdown(sb *strings.Builder, sum Summary, turns []session.Turn, now time.Time) {
	sb.WriteString("# oxbot Chat History\n\n")
	if sum.Title != "" {
		fmt.Fprintf(sb, "**Title:** %s\n\n", sum.Title)
	}
	fmt.Fprintf(sb, "**Exported:** %s\n\n", now.Format("2006-01-02 15:04:05"))
	if sum.Usage.TotalTokens > 0 {
		fmt.Fprintf(sb, "**Tokens:** %d in, %d out\n\n", sum.Usage.InputTokens, sum.Usage.OutputTokens)
	}
	sb.WriteString("---\n\n")

	for _, turn := range turns {
		for _, seg := range turn.Segments {
			switch seg.Kind {
			case session.SegmentText:
				if turn.Role == llm.RoleAssistant {
					sb.WriteString("### Assistant\n\n")
				} else {
					sb.WriteString("### User\n\n")
				}
				sb.WriteString(strings.TrimSpace(seg.Text))
				sb.WriteString("\n\n")
			case session.SegmentCode:
				fmt.Fprintf(sb, "### Code (%s)\n\n```%s\n%s\n```\n\n", seg.Language, seg.Language, strings.TrimRight(seg.Text, "\n"))
			case session.SegmentOutput:
				fmt.Fprintf(sb, "### Console Output\n\n```\n%s\n```\n\n", strings.TrimRight(seg.Text, "\n"))
			case session.SegmentImage:
				fmt.Fprintf(sb, "*[image: %s]*\n\n", seg.ImageRef)
			}
		}
		sb.WriteString("---\n\n")
	}
}

func writeText(sb *strings.Builder, sum Summary, turns []session.Turn, now time.Time) {
	rule := strings.Repeat("=", 60)
	sep := strings.Repeat("-", 60)

	sb.WriteString(rule + "\n")
	sb.WriteString("oxbot Chat History\n")
	if sum.Title != "" {
		sb.WriteString("Title: " + sum.Title + "\n")
	}
	sb.WriteString("Exported: " + now.Format("2006-01-02 15:04:05") + "\n")
	sb.WriteString(rule + "\n\n")

	for _, turn := range turns {
		for _, seg := range turn.Segments {
			switch seg.Kind {
			case session.SegmentText:
				fmt.Fprintf(sb, "[%s]\n%s\n\n", strings.ToUpper(string(turn.Role)), strings.TrimSpace(seg.Text))
			case session.SegmentCode:
				fmt.Fprintf(sb, "[CODE %s]\n%s\n\n", seg.Language, strings.TrimRight(seg.Text, "\n"))
			case session.SegmentOutput:
				fmt.Fprintf(sb, "[OUTPUT CONSOLE]\n%s\n\n", strings.TrimRight(seg.Text, "\n"))
			case session.SegmentImage:
				fmt.Fprintf(sb, "[IMAGE %s]\n\n", seg.ImageRef)
			}
		}
		sb.WriteString(sep + "\n\n")
	}
}
