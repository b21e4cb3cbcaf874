// Package classify maps object detector labels to waste categories.
package classify

import (
	"fmt"
	"strings"

	"github.com/grovetools/wastenet/errors"
)

// DefaultThreshold is the minimum detector confidence; scores must exceed it.
const DefaultThreshold = 0.60

// Waste categories produced by the default label map.
const (
	CategoryPlastic = "plastic"
	CategoryPaper   = "paper"
	CategoryOrganic = "organic"
	CategoryOther   = "other"
)

// DefaultLabels maps detector labels to categories.
func DefaultLabels() map[string]string {
	return map[string]string{
		"bottle":     CategoryPlastic,
		"cup":        CategoryPlastic,
		"book":       CategoryPaper,
		"apple":      CategoryOrganic,
		"banana":     CategoryOrganic,
		"orange":     CategoryOrganic,
		"bowl":       CategoryOther,
		"cell phone": CategoryOther,
	}
}

// Prediction is one detector result.
type Prediction struct {
	Label string
	Score float64
}

// Classifier turns predictions into a category.
type Classifier struct {
	threshold float64
	labels    map[string]string
}

// New returns a classifier using the default labels merged with overrides.
// An override mapping a label to "" removes it. A threshold outside (0,1]
// selects DefaultThreshold.
func New(threshold float64, overrides map[string]string) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	labels := DefaultLabels()
	for label, category := range overrides {
		label = normalize(label)
		if category == "" {
			delete(labels, label)
			continue
		}
		labels[label] = strings.TrimSpace(category)
	}
	return &Classifier{threshold: threshold, labels: labels}
}

// Threshold returns the confidence threshold in use.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Category returns the category for label, if it is mapped.
func (c *Classifier) Category(label string) (string, bool) {
	category, ok := c.labels[normalize(label)]
	return category, ok
}

// Classify returns the category of a single prediction. Unmapped labels
// and scores at or below the threshold are INVALID_INPUT errors.
func (c *Classifier) Classify(p Prediction) (string, error) {
	category, ok := c.Category(p.Label)
	if !ok {
		return "", errors.InvalidInput("classify", fmt.Sprintf("label %q is not a recognised waste item", p.Label)).
			WithDetail("label", p.Label)
	}
	if p.Score <= c.threshold {
		return "", errors.InvalidInput("classify",
			fmt.Sprintf("confidence %.2f does not exceed threshold %.2f", p.Score, c.threshold)).
			WithDetail("label", p.Label)
	}
	return category, nil
}

// First returns the category of the first prediction that classifies. Only
// one item is logged per detection pass.
func (c *Classifier) First(predictions []Prediction) (Prediction, string, bool) {
	for _, p := range predictions {
		if category, err := c.Classify(p); err == nil {
			return p, category, true
		}
	}
	return Prediction{}, "", false
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
