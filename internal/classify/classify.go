// Package classify turns a final lookup page snapshot into a structured
// outcome. It is a pure function over the HTML: no browser, no I/O.
package classify

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/regscan/internal/lookup"
)

// Portal status vocabulary, accent-stripped and upper-cased. Anything
// the portal renders in the status cell that is not listed here leaves
// the result block unrecognized.
var activeStatuses = map[string]bool{
	"HABIL": true,
}

var inactiveStatuses = map[string]bool{
	"INHABIL":    true,
	"NO HABIL":   true,
	"NOHABIL":    true,
	"SUSPENDIDO": true,
	"SUSPENSION": true,
	"FALLECIDO":  true,
	"INACTIVO":   true,
	"BAJA":       true,
	"RETIRADO":   true,
	"CANCELADO":  true,
}

// Page markers distinguishing terminal shapes. The no-match message and
// the search form are matched on normalized text so accent and case
// drift in the markup does not flip the classification.
const (
	markerNoMatch   = "NO SE ENCONTRARON RESULTADOS"
	markerSpecialty = "REGISTRO"
	formFieldMarker = `name="cmp"`
	challengeMarker = "g-recaptcha"
)

// Classify maps a snapshot to a Result or a Failure. Exactly one return
// value is non-nil.
func Classify(snapshot []byte) (*lookup.Result, *lookup.Failure) {
	doc, err := html.Parse(bytes.NewReader(snapshot))
	if err != nil {
		return nil, lookup.Failf(lookup.KindParse, "parse html: %v", err)
	}

	status, specialties, hasBlock := extractDetail(doc)
	if hasBlock {
		res := &lookup.Result{
			RawStatus:   status,
			Specialties: specialties,
		}
		switch norm := normalize(status); {
		case activeStatuses[norm]:
			res.Status = lookup.StatusActive
		case inactiveStatuses[norm]:
			res.Status = lookup.StatusInactive
		default:
			// Result block present but fields unrecognized or empty.
			// A valid terminal outcome, not an error.
			res.Status = lookup.StatusUnknown
		}
		return res, nil
	}

	page := normalize(collectText(doc))
	if strings.Contains(page, markerNoMatch) {
		return nil, lookup.Failf(lookup.KindNotFound, "portal reported no match")
	}

	// The form came back without a no-match message: the challenge
	// score rejected the submission.
	raw := string(snapshot)
	if strings.Contains(raw, formFieldMarker) || strings.Contains(raw, challengeMarker) {
		return nil, lookup.Failf(lookup.KindChallengeRejected, "form re-shown without results")
	}

	return nil, lookup.Failf(lookup.KindParse, "unrecognized page shape (%d bytes)", len(snapshot))
}

// extractDetail scans the detail page tables. The status lives in a
// small single-column table; the specialty table announces itself with
// a REGISTRO header cell. hasBlock reports whether either was seen.
func extractDetail(doc *html.Node) (status string, specialties []string, hasBlock bool) {
	for _, table := range findTables(doc) {
		rows := tableRows(table)
		if len(rows) == 0 {
			continue
		}

		if status == "" {
			if s, ok := statusCell(rows); ok {
				status = s
				hasBlock = true
			}
		}

		header := rowCells(rows[0])
		if headerHas(header, markerSpecialty) {
			hasBlock = true
			for _, row := range rows[1:] {
				cells := rowCells(row)
				if len(cells) > 0 && cells[0] != "" {
					specialties = append(specialties, cells[0])
				}
			}
		}
	}
	return status, specialties, hasBlock
}

// statusCell accepts the portal's two status table layouts: one row with
// one cell, or a heading row followed by the status cell.
func statusCell(rows []*html.Node) (string, bool) {
	candidate := ""
	switch {
	case len(rows) == 1:
		cells := rowCells(rows[0])
		if len(cells) == 1 {
			candidate = cells[0]
		}
	case len(rows) == 2:
		cells := rowCells(rows[1])
		if len(cells) == 1 {
			candidate = cells[0]
		}
	}
	if candidate == "" {
		return "", false
	}
	norm := normalize(candidate)
	if activeStatuses[norm] || inactiveStatuses[norm] {
		return candidate, true
	}
	return "", false
}

func headerHas(cells []string, needle string) bool {
	for _, c := range cells {
		if strings.Contains(strings.ToUpper(c), needle) {
			return true
		}
	}
	return false
}

func findTables(doc *html.Node) []*html.Node {
	var tables []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			tables = append(tables, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tables
}

func tableRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			rows = append(rows, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return rows
}

func rowCells(row *html.Node) []string {
	var cells []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th) {
			cells = append(cells, collectText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(row)
	return cells
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

var accentFold = strings.NewReplacer(
	"Á", "A", "À", "A", "Â", "A", "Ä", "A", "Ã", "A",
	"É", "E", "È", "E", "Ê", "E", "Ë", "E",
	"Í", "I", "Ì", "I", "Î", "I", "Ï", "I",
	"Ó", "O", "Ò", "O", "Ô", "O", "Ö", "O", "Õ", "O",
	"Ú", "U", "Ù", "U", "Û", "U", "Ü", "U",
	"Ñ", "N",
)

// normalize upper-cases and strips Spanish accents so the vocabulary
// match survives the portal's inconsistent capitalization.
func normalize(s string) string {
	return strings.TrimSpace(accentFold.Replace(strings.ToUpper(s)))
}
