package llm

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"github.com/vietddude/reviewer/internal/core/domain"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type reviewPromptData struct {
	Text   string
	Gender domain.Gender
	Date   string
}

type spellingPromptData struct {
	Text string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func reviewPrompt(p domain.ReviewPayload, now time.Time) (string, error) {
	gender := p.Gender
	if gender == "" {
		gender = "не указан"
	}
	return render("review_check.tmpl", reviewPromptData{
		Text:   p.Text,
		Gender: gender,
		Date:   now.Format("02.01.2006"),
	})
}

func spellingPrompt(text string) (string, error) {
	return render("spelling.tmpl", spellingPromptData{Text: text})
}
