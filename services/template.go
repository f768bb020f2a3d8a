package services

import "regexp"

var placeholder = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// TemplateData holds the values a message template can refer to.
type TemplateData struct {
	Name    string
	Branch  string
	Product string
	EndDate string
}

func (d TemplateData) lookup(key string) (string, bool) {
	switch key {
	case "name":
		return d.Name, true
	case "branch":
		return d.Branch, true
	case "product":
		return d.Product, true
	case "end_date":
		return d.EndDate, true
	default:
		return "", false
	}
}

// RenderTemplate replaces {{name}}, {{branch}}, {{product}} and {{end_date}}.
// Unknown placeholders are kept verbatim.
func RenderTemplate(body string, data TemplateData) string {
	return placeholder.ReplaceAllStringFunc(body, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := data.lookup(key); ok {
			return v
		}
		return m
	})
}

// Placeholders lists the known placeholders used in body, in order of
// first appearance.
func Placeholders(body string) []string {
	seen := map[string]bool{}
	var keys []string
	for _, m := range placeholder.FindAllStringSubmatch(body, -1) {
		key := m[1]
		if _, ok := (TemplateData{}).lookup(key); !ok || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// DateLayout is the date format used in the API and in rendered messages.
const DateLayout = "2006-01-02"
