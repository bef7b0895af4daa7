package intake

import "strings"

const DefaultPrice = 35

// PriceRule prices an external service label. Rules are evaluated in slice order and the first
// match wins, so "Good Vibes Experience" must never be shadowed by a broader substring rule.
type PriceRule struct {
	Name  string
	Match func(service string) bool
	Price float64
}

func contains(sub string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, sub) }
}

func equals(want string) func(string) bool {
	return func(s string) bool { return s == want }
}

var DefaultPriceRules = []PriceRule{
	{Name: "student", Match: contains("Student"), Price: 25},
	{Name: "beard", Match: contains("Beard"), Price: 25},
	{Name: "shave", Match: contains("Shave"), Price: 30},
	{Name: "vibes-experience", Match: equals("Vibes Experience"), Price: 55},
	{Name: "good-vibes-experience", Match: equals("Good Vibes Experience"), Price: 70},
	{Name: "wax", Match: contains("Wax"), Price: 8},
}

// PriceFor applies rules to the trimmed label and falls back to DefaultPrice.
func PriceFor(rules []PriceRule, service string) float64 {
	service = strings.TrimSpace(service)
	for _, r := range rules {
		if r.Match(service) {
			return r.Price
		}
	}
	return DefaultPrice
}
