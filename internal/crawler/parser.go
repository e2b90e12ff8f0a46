package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/webaudit/webaudit/internal/model"
)

// HTML element name constants for form field detection.
const (
	htmlElementInput    = "input"
	htmlElementSelect   = "select"
	htmlElementTextarea = "textarea"
	htmlElementButton   = "button"
	htmlElementOption   = "option"
)

// Input types that are not user-fillable and are skipped during
// field extraction. Hidden fields keep their server-rendered value
// (CSRF tokens and the like), so overwriting them would break submission.
var nonFillableTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
	"file":   true,
}

// Parser extracts links and forms from rendered HTML.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. Provides a proper DOM-like structure
//  3. More maintainable than complex regex patterns
//  4. Standard library extension, well-maintained
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL
}

// ParseResult contains everything extracted from an HTML page in a
// single pass.
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// Links contains anchors in document order, with duplicates
	// preserved. Each link carries its resolved absolute URL and
	// visible text.
	Links []model.Link

	// Forms contains discovered forms in document order.
	Forms []model.Form
}

// NewParser creates a new HTML parser with the given base URL.
// The base URL is used to resolve relative links.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts links and forms.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Links: make([]model.Link, 0),
		Forms: make([]model.Form, 0),
	}

	// Walk the DOM tree
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					result.Title = strings.TrimSpace(n.FirstChild.Data)
				}

			case "a":
				if href := getAttr(n, "href"); href != "" {
					resolved := p.resolveURL(href)
					if resolved != "" {
						result.Links = append(result.Links, model.Link{
							Href: resolved,
							Text: linkText(n),
						})
					}
				}

			case "form":
				form := p.parseForm(n, len(result.Forms)+1)
				result.Forms = append(result.Forms, form)
				// parseForm descends into the subtree itself.
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return result, nil
}

// parseForm extracts a form and its fillable fields.
func (p *Parser) parseForm(n *html.Node, index int) model.Form {
	form := model.Form{
		Action: p.resolveURL(getAttr(n, "action")),
		Method: strings.ToUpper(getAttr(n, "method")),
		ID:     getAttr(n, "id"),
		Name:   getAttr(n, "name"),
		Index:  index,
		Fields: make([]model.FormField, 0),
	}
	if form.Method == "" {
		form.Method = "GET"
	}
	if form.Action == "" {
		// An action-less form submits to the current page.
		form.Action = p.baseURL.String()
	}

	p.extractFormFields(n, &form)
	return form
}

// extractFormFields recursively collects fillable fields and the submit
// button text from a form subtree.
func (p *Parser) extractFormFields(n *html.Node, form *model.Form) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case htmlElementInput:
			typ := strings.ToLower(getAttr(n, "type"))
			if typ == "" {
				typ = "text"
			}
			if typ == "submit" && form.SubmitText == "" {
				form.SubmitText = getAttr(n, "value")
			}
			if !nonFillableTypes[typ] {
				field := model.FormField{
					Name:        getAttr(n, "name"),
					ID:          getAttr(n, "id"),
					Type:        typ,
					Required:    hasAttr(n, "required"),
					Value:       getAttr(n, "value"),
					Placeholder: getAttr(n, "placeholder"),
				}
				if field.Name != "" {
					form.Fields = append(form.Fields, field)
				}
			}

		case htmlElementTextarea:
			field := model.FormField{
				Name:        getAttr(n, "name"),
				ID:          getAttr(n, "id"),
				Type:        htmlElementTextarea,
				Required:    hasAttr(n, "required"),
				Placeholder: getAttr(n, "placeholder"),
			}
			if field.Name != "" {
				form.Fields = append(form.Fields, field)
			}

		case htmlElementSelect:
			field := model.FormField{
				Name:     getAttr(n, "name"),
				ID:       getAttr(n, "id"),
				Type:     htmlElementSelect,
				Required: hasAttr(n, "required"),
				Options:  selectOptions(n),
			}
			if field.Name != "" {
				form.Fields = append(form.Fields, field)
			}
			// Options already collected; skip the subtree.
			return

		case htmlElementButton:
			typ := strings.ToLower(getAttr(n, "type"))
			if (typ == "" || typ == "submit") && form.SubmitText == "" {
				form.SubmitText = strings.TrimSpace(nodeText(n))
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.extractFormFields(c, form)
	}
}

// selectOptions collects option values of a select element in order.
// An option without a value attribute submits its text content.
func selectOptions(n *html.Node) []string {
	options := make([]string, 0)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == htmlElementOption {
			value, ok := lookupAttr(n, "value")
			if !ok {
				value = strings.TrimSpace(nodeText(n))
			}
			options = append(options, value)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return options
}

// linkText returns the visible text of an anchor, falling back to the
// title and aria-label attributes when the anchor wraps only images.
func linkText(n *html.Node) string {
	text := strings.Join(strings.Fields(nodeText(n)), " ")
	if text != "" {
		return text
	}
	if title := getAttr(n, "title"); title != "" {
		return title
	}
	return getAttr(n, "aria-label")
}

// nodeText concatenates all text nodes under n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// resolveURL resolves a relative URL against the base URL.
//
// Design decision: We resolve URLs rather than storing them as-is because:
//  1. Makes deduplication easier
//  2. Allows proper link classification
//  3. Reduces ambiguity in results
func (p *Parser) resolveURL(href string) string {
	if href == "" {
		return ""
	}

	// Handle special cases
	href = strings.TrimSpace(href)

	// mailto: and tel: point out of the app but still name a contact
	// the page advertises; keep them verbatim so they show up as
	// external link records instead of vanishing from the report.
	if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
		return href
	}

	if strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "data:") ||
		href == "#" {
		return ""
	}

	// Parse and resolve
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

// lookupAttr retrieves an attribute value and reports whether it exists.
func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// hasAttr reports whether the attribute is present, regardless of value.
func hasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}
