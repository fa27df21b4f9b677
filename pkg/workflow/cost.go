package workflow

import (
	"regexp"
	"strconv"
)

// CostParser extracts a best-effort cost figure from worker output text. A
// replaceable strategy: absence of a match is not an error, and downstream
// totals treat a missing value as zero.
type CostParser interface {
	Parse(output string) *float64
}

// Workers report cost in lines like "Estimated Cost: ~$0.08/execution" or
// "Cost: $1.25".
var defaultCostPattern = regexp.MustCompile(`(?i)cost:?\s*~?\$(\d+(?:\.\d+)?)`)

// PatternCostParser matches a single regular expression against the output
// and takes the first capture as the cost.
type PatternCostParser struct {
	pattern *regexp.Regexp
}

// NewCostParser returns the default pattern-based parser.
func NewCostParser() *PatternCostParser {
	return &PatternCostParser{pattern: defaultCostPattern}
}

func (p *PatternCostParser) Parse(output string) *float64 {
	match := p.pattern.FindStringSubmatch(output)
	if match == nil {
		return nil
	}

	cost, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}

	return &cost
}
