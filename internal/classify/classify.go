// Package classify maps a message's provider labels and subject line to a
// service category.
package classify

import (
	"strings"

	"mailcensus/internal/model"
)

// labelTags maps Gmail category labels to tags in priority order; the first
// label present on a message wins. Provider labels are authoritative and
// always take precedence over subject heuristics.
var labelTags = []struct {
	label string
	tag   model.Category
}{
	{"CATEGORY_PERSONAL", model.CategoryPersonal},
	{"CATEGORY_SOCIAL", model.CategorySocial},
	{"CATEGORY_PROMOTIONS", model.CategoryPromotions},
	{"CATEGORY_UPDATES", model.CategoryUpdates},
	{"CATEGORY_FORUMS", model.CategoryForums},
}

// subscriptionKeywords trigger the Subscription fallback on a
// case-insensitive substring match against the subject.
var subscriptionKeywords = []string{"subscription", "newsletter", "welcome", "account"}

// Classify returns exactly one category for any subject/label combination.
// Messages matching no label and no keyword fall through to DataHolder.
func Classify(subject string, labels []string) model.Category {
	for _, lt := range labelTags {
		for _, l := range labels {
			if l == lt.label {
				return lt.tag
			}
		}
	}
	lower := strings.ToLower(subject)
	for _, kw := range subscriptionKeywords {
		if strings.Contains(lower, kw) {
			return model.CategorySubscription
		}
	}
	return model.CategoryDataHolder
}
