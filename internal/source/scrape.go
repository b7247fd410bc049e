package source

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	appLog "danceimport/internal/log"
	"danceimport/internal/model"
)

const (
	// DefaultBaseURL prefixes relative event paths found on listing pages.
	DefaultBaseURL = "https://www.danceplace.com"

	eventPathPrefix = "/events/"
	cardClass       = "MuiPaper-root"
	minPageBytes    = 500

	locationFallback = "Location TBD"
	dateFallback     = "Date TBD"
)

// ExtractEvents pulls one ScrapedRecord per event card out of a rendered
// listing page. Cards without a heading or without an event link are
// skipped. A page shorter than a few hundred bytes is treated as an empty
// shell and yields nothing.
func ExtractEvents(page []byte, baseURL string) []model.ScrapedRecord {
	if len(page) < minPageBytes {
		appLog.Warn("listing page missing or too short", "bytes", len(page))
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		appLog.Error("listing page parse failed", err)
		return nil
	}

	var (
		records []model.ScrapedRecord
		seen    = map[*html.Node]bool{}
		anchors int
	)
	walk(doc, func(n *html.Node) {
		if n.DataAtom != atom.A || !strings.HasPrefix(attr(n, "href"), eventPathPrefix) {
			return
		}
		card := closestCard(n)
		if card == nil {
			return
		}
		anchors++
		// A card may link to its event more than once.
		if seen[card] {
			return
		}
		seen[card] = true

		rec, ok := recordFromCard(card, attr(n, "href"), baseURL)
		if ok {
			records = append(records, rec)
		}
	})

	if anchors == 0 {
		appLog.Warn("no event cards found; page structure may have changed")
	}
	appLog.Info("listing page extracted", "cards", len(seen), "records", len(records))
	return records
}

func recordFromCard(card *html.Node, href, baseURL string) (model.ScrapedRecord, bool) {
	title := textOf(findFirst(card, func(n *html.Node) bool {
		return n.DataAtom == atom.H2 || n.DataAtom == atom.H3
	}))
	if title == "" {
		return model.ScrapedRecord{}, false
	}

	location := textOf(findFirst(card, paragraphWithClass("location")))
	if location == "" {
		location = locationFallback
	}
	rawDate := textOf(findFirst(card, paragraphWithClass("date")))
	if rawDate == "" {
		rawDate = dateFallback
	}

	return model.ScrapedRecord{
		ID:       lastSegment(href),
		Title:    title,
		Location: location,
		RawDate:  rawDate,
		EventURL: resolve(baseURL, href),
	}, true
}

func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// findFirst returns the first descendant of root, in document order, that
// matches.
func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func closestCard(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.DataAtom == atom.Div && strings.Contains(attr(p, "class"), cardClass) {
			return p
		}
	}
	return nil
}

func paragraphWithClass(fragment string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.DataAtom == atom.P && strings.Contains(attr(n, "class"), fragment)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf concatenates the text below n with runs of whitespace collapsed.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func lastSegment(href string) string {
	p := href
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}

func resolve(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return strings.TrimRight(baseURL, "/") + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return strings.TrimRight(baseURL, "/") + href
	}
	return base.ResolveReference(ref).String()
}
