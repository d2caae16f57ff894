package service

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// plainEntities undoes the escaping the policy applies to characters that are
// not markup on their own. &lt; and &gt; stay encoded.
var plainEntities = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", `"`)

// sanitizeText strips all markup from user supplied free text.
func sanitizeText(s string) string {
	return strings.TrimSpace(plainEntities.Replace(textPolicy.Sanitize(s)))
}
