// Package source maps a target URL to the kind of dashboard content it points at.
package source

import (
	"strings"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
)

type marker struct {
	fragment string
	source   schemas.ReportSource
}

// markers is scanned in order; the first fragment contained in the URL wins.
var markers = []marker{
	{"dashboards#", schemas.SourceDashboard},
	{"visualize&", schemas.SourceVisualization},
	{"discover#", schemas.SourceDiscover},
	{"data-explorer/discover", schemas.SourceDiscover},
	{"notebooks", schemas.SourceNotebook},
}

// Classify returns the report source for url. Unmatched URLs are SourceOther.
func Classify(url string) schemas.ReportSource {
	for _, m := range markers {
		if strings.Contains(url, m.fragment) {
			return m.source
		}
	}
	return schemas.SourceOther
}
