package assemble

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/sym01/htmlsanitizer"

	"github.com/rpatel/newsbrief/internal/digest"
)

// HTMLRenderer produces a self-contained HTML artifact. Each article
// is wrapped in an <article data-url="..."> element so the output
// stays machine-inspectable, entry for entry, in document order.
type HTMLRenderer struct {
	tmpl *template.Template
}

var _ digest.Renderer = (*HTMLRenderer)(nil)

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		tmpl: template.Must(template.New("digest").Parse(digestTemplate)),
	}
}

type (
	templateDoc struct {
		Date     string
		Sections []templateSection
	}

	templateSection struct {
		Category string
		Items    []templateItem
	}

	templateItem struct {
		URL     string
		Title   string
		Heading string
		Summary template.HTML
	}
)

func (r *HTMLRenderer) Render(_ context.Context, doc digest.Document) ([]byte, string, error) {
	sanitizer := htmlsanitizer.NewHTMLSanitizer()

	tdoc := templateDoc{
		Date: doc.GeneratedAt.Format("January 2, 2006"),
	}
	for _, section := range doc.Sections {
		tsec := templateSection{Category: string(section.Category)}
		for _, item := range section.Items {
			// Summaries may carry markup from the remote backend; pass
			// them through the sanitizer before trusting them in the
			// artifact.
			clean, err := sanitizer.SanitizeString(item.Summary)
			if err != nil {
				return nil, "", fmt.Errorf("error sanitizing summary: %w", err)
			}

			tsec.Items = append(tsec.Items, templateItem{
				URL:     item.Ref.URL,
				Title:   item.Ref.Title,
				Heading: item.Heading,
				Summary: template.HTML(clean),
			})
		}
		tdoc.Sections = append(tdoc.Sections, tsec)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, tdoc); err != nil {
		return nil, "", fmt.Errorf("error executing digest template: %w", err)
	}

	return buf.Bytes(), "text/html; charset=utf-8", nil
}

const digestTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Daily News Digest - {{.Date}}</title>
<style>
body { font-family: Georgia, serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { border-bottom: 3px solid #b30000; padding-bottom: .5rem; }
h2 { color: #b30000; text-transform: capitalize; margin-top: 2rem; }
article { margin: 1.25rem 0; padding-bottom: 1rem; border-bottom: 1px solid #ddd; }
article h3 { margin: 0 0 .25rem; }
article p { margin: .25rem 0; line-height: 1.5; }
.source { font-size: .85rem; color: #666; }
</style>
</head>
<body>
<h1>Daily News Digest</h1>
<p class="source">{{.Date}}</p>
{{range .Sections}}<section data-category="{{.Category}}">
<h2>{{.Category}}</h2>
{{range .Items}}<article data-url="{{.URL}}">
<h3>{{.Heading}}</h3>
<p>{{.Summary}}</p>
<p class="source"><a href="{{.URL}}">{{.Title}}</a></p>
</article>
{{end}}</section>
{{end}}</body>
</html>
`
