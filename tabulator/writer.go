package tabulator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/mwapi"
	"github.com/sdzerobot/sdzerobot/wikitext"
)

// DefaultEndTemplate closes the region the bot owns after a report template
const DefaultEndTemplate = "Database report end"

// Save error codes that mean the bot may not edit the page at all
var protectionCodes = map[string]bool{
	"protectedpage":    true,
	"cascadeprotected": true,
	"permissiondenied": true,
	"protectedtitle":   true,
}

// Wiki is the part of the MediaWiki API the pipeline needs
type Wiki interface {
	Page(ctx context.Context, title string) (*mwapi.Page, error)
	Edit(ctx context.Context, req mwapi.EditRequest) error
}

// ReplaceRegion puts body between the template and the end marker that
// follows it. Only a marker before the next invocation of the same template
// counts. Without one, the text up to that next invocation (or the rest of
// the page) is replaced and a marker is added. The splice is literal, so
// body may contain any characters, "$" included.
func ReplaceRegion(pageText, templateText, body string) (string, error) {
	return replaceRegion(pageText, templateText, DefaultEndTemplate, body)
}

func replaceRegion(pageText, templateText, endTemplate, body string) (string, error) {
	idx := strings.Index(pageText, templateText)
	if idx < 0 {
		return "", errors.WithHint(errors.WithStack(errors.ErrTemplateNotFound),
			"the page was probably edited while the query ran")
	}
	after := idx + len(templateText)

	var b strings.Builder
	b.Grow(len(pageText) + len(body) + 2)
	b.WriteString(pageText[:after])
	b.WriteByte('\n')
	b.WriteString(body)
	b.WriteByte('\n')

	limit := regionLimit(pageText, templateText, after)
	if start, _, ok := wikitext.FindEndMarker(pageText[:limit], after, endTemplate); ok {
		b.WriteString(pageText[start:])
	} else {
		b.WriteString("{{" + endTemplate + "}}")
		if limit < len(pageText) {
			b.WriteByte('\n')
			b.WriteString(pageText[limit:])
		}
	}
	return b.String(), nil
}

// regionLimit is the offset of the next invocation of the template after
// offset after, or the page length when there is none
func regionLimit(pageText, templateText string, after int) int {
	tpl, ok := wikitext.ParseTemplate(templateText)
	if !ok {
		return len(pageText)
	}
	if next := wikitext.FindTemplates(pageText[after:], tpl.Name); len(next) > 0 {
		return after + next[0].Start
	}
	return len(pageText)
}

// ExtractRegion returns what ReplaceRegion put after the template
func ExtractRegion(pageText, templateText string) (string, bool) {
	return extractRegion(pageText, templateText, DefaultEndTemplate)
}

func extractRegion(pageText, templateText, endTemplate string) (string, bool) {
	idx := strings.Index(pageText, templateText)
	if idx < 0 {
		return "", false
	}
	after := idx + len(templateText)
	limit := regionLimit(pageText, templateText, after)
	start, _, ok := wikitext.FindEndMarker(pageText[:limit], after, endTemplate)
	if !ok {
		return "", false
	}
	region := pageText[after:start]
	region = strings.TrimPrefix(region, "\n")
	region = strings.TrimSuffix(region, "\n")
	return region, true
}

// ErrorBox renders a message in the wiki's error template. hint is appended
// unescaped so it may contain links.
func ErrorBox(message, hint string) string {
	text := EscapeParam(message)
	if hint != "" {
		text += " " + hint
	}
	return "{{error|1=" + text + "}}"
}

// FallbackError reports that a report could not be saved but an error box
// was saved in its place
type FallbackError struct {
	Title string
	Cause error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("saved an error box on %s instead of the report: %v", e.Title, e.Cause)
}

func (e *FallbackError) Unwrap() error { return e.Cause }

// Writer saves rendered reports
type Writer struct {
	wiki        Wiki
	endTemplate string
	summary     string
	logger      *zap.SugaredLogger
}

// NewWriter creates a writer that edits through wiki
func NewWriter(wiki Wiki, endTemplate, summary string, log *zap.SugaredLogger) *Writer {
	if endTemplate == "" {
		endTemplate = DefaultEndTemplate
	}
	if log == nil {
		log = logger.ComponentLogger("writer")
	}
	return &Writer{wiki: wiki, endTemplate: endTemplate, summary: summary, logger: log}
}

// Save writes pages[0] into the template's region on title and pages[1:]
// to the subpages title/2, title/3, ...
//
// A missing template or a protected page is returned as is. Other save
// failures are retried once with an error box and reported as
// *FallbackError when that works.
func (w *Writer) Save(ctx context.Context, title, templateText string, pages []string) (saved int, err error) {
	var fallback error
	for i, body := range pages {
		if i == 0 {
			err = w.saveRegion(ctx, title, templateText, body, w.summary)
		} else {
			sub := fmt.Sprintf("%s/%d", title, i+1)
			err = w.saveSubpage(ctx, sub, i+1, len(pages), body)
		}
		var fb *FallbackError
		if errors.As(err, &fb) {
			fallback = err
			continue
		}
		if err != nil {
			return saved, err
		}
		saved++
	}
	return saved, fallback
}

// SaveError replaces the template's region with an error box
func (w *Writer) SaveError(ctx context.Context, title, templateText, message, hint string) error {
	page, err := w.wiki.Page(ctx, title)
	if err != nil {
		return errors.Wrapf(err, "fetch %s", title)
	}
	text, err := replaceRegion(page.Text, templateText, w.endTemplate, ErrorBox(message, hint))
	if err != nil {
		return err
	}
	err = w.wiki.Edit(ctx, mwapi.EditRequest{
		Title:         title,
		Text:          text,
		Summary:       w.summary + ": encountered error",
		BaseTimestamp: page.Timestamp,
		Bot:           true,
	})
	if err != nil {
		return w.fatalSaveError(title, err)
	}
	return nil
}

func (w *Writer) saveRegion(ctx context.Context, title, templateText, body, summary string) error {
	page, err := w.wiki.Page(ctx, title)
	if err != nil {
		return errors.Wrapf(err, "fetch %s", title)
	}

	text, err := replaceRegion(page.Text, templateText, w.endTemplate, body)
	if err != nil {
		return err
	}

	req := mwapi.EditRequest{
		Title:         title,
		Text:          text,
		Summary:       summary,
		BaseTimestamp: page.Timestamp,
		Bot:           true,
	}
	err = w.wiki.Edit(ctx, req)
	if err == nil {
		return nil
	}
	if isProtectionError(err) {
		return w.fatalSaveError(title, err)
	}

	w.logger.Warnw("Save failed, retrying with error box",
		logger.FieldPage, title,
		logger.FieldError, err)

	req.Text, _ = replaceRegion(page.Text, templateText, w.endTemplate,
		ErrorBox("Failed to save the report: "+saveErrorMessage(err), ""))
	req.Summary = summary + ": encountered error"
	if retryErr := w.wiki.Edit(ctx, req); retryErr != nil {
		return w.fatalSaveError(title, retryErr)
	}
	return &FallbackError{Title: title, Cause: err}
}

func (w *Writer) saveSubpage(ctx context.Context, title string, page, numPages int, body string) error {
	header := fmt.Sprintf("{{Database report/subpage|page=%d|num_pages=%d}}\n", page, numPages)
	req := mwapi.EditRequest{
		Title:   title,
		Text:    header + body,
		Summary: w.summary,
		Bot:     true,
	}
	err := w.wiki.Edit(ctx, req)
	if err == nil {
		return nil
	}
	if isProtectionError(err) {
		return w.fatalSaveError(title, err)
	}

	req.Text = header + ErrorBox("Failed to save this page of the report: "+saveErrorMessage(err), "")
	if retryErr := w.wiki.Edit(ctx, req); retryErr != nil {
		return w.fatalSaveError(title, retryErr)
	}
	return &FallbackError{Title: title, Cause: err}
}

func (w *Writer) fatalSaveError(title string, err error) error {
	if isProtectionError(err) {
		return errors.Wrapf(errors.WithSecondaryError(errors.ErrProtectedPage, err), "save %s", title)
	}
	return errors.Wrapf(err, "save %s", title)
}

func isProtectionError(err error) bool {
	var apiErr *mwapi.APIError
	return errors.As(err, &apiErr) && protectionCodes[apiErr.Code]
}

func saveErrorMessage(err error) string {
	var apiErr *mwapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code + ": " + apiErr.Info
	}
	return err.Error()
}
