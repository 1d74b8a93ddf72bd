package template

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Placeholder names understood by the start, force-subscribe and about texts.
const (
	VarFirst    = "first"
	VarLast     = "last"
	VarUsername = "username"
	VarMention  = "mention"
	VarID       = "id"
)

var ErrUnknownVariable = errors.New("unknown template variable")

var knownVars = map[string]struct{}{
	VarFirst:    {},
	VarLast:     {},
	VarUsername: {},
	VarMention:  {},
	VarID:       {},
}

// Renderer handles template variable substitution
type Renderer struct {
	// varPattern matches {name} placeholders
	varPattern *regexp.Regexp
}

func NewRenderer() *Renderer {
	return &Renderer{
		varPattern: regexp.MustCompile(`\{(\w+)\}`),
	}
}

// Render replaces {name} placeholders in template with values from vars.
// Unknown placeholders are left unchanged.
func (r *Renderer) Render(template string, vars map[string]string) string {
	return r.varPattern.ReplaceAllStringFunc(template, func(match string) string {
		if value, ok := vars[match[1:len(match)-1]]; ok {
			return value
		}
		return match
	})
}

// ExtractVariables returns the unique placeholder names in template, in order
// of first appearance.
func (r *Renderer) ExtractVariables(template string) []string {
	matches := r.varPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]struct{}, len(matches))
	result := make([]string, 0, len(matches))
	for _, match := range matches {
		if _, ok := seen[match[1]]; ok {
			continue
		}
		seen[match[1]] = struct{}{}
		result = append(result, match[1])
	}
	return result
}

// Check rejects a template that uses a placeholder UserVars never fills.
func (r *Renderer) Check(template string) error {
	for _, name := range r.ExtractVariables(template) {
		if _, ok := knownVars[name]; !ok {
			return fmt.Errorf("%w: {%s}", ErrUnknownVariable, name)
		}
	}
	return nil
}

// UserVars builds the placeholder values for a Telegram user. Names are
// HTML-escaped because every text is sent with the HTML parse mode.
func UserVars(u *tgbotapi.User) map[string]string {
	if u == nil {
		return map[string]string{}
	}

	first := html.EscapeString(u.FirstName)
	username := ""
	if u.UserName != "" {
		username = "@" + u.UserName
	}
	id := strconv.FormatInt(u.ID, 10)

	return map[string]string{
		VarFirst:    first,
		VarLast:     html.EscapeString(u.LastName),
		VarUsername: username,
		VarMention:  `<a href="tg://user?id=` + id + `">` + first + `</a>`,
		VarID:       id,
	}
}
