package ects

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	unitCreditRe = regexp.MustCompile(`(?i)(\d{1,2}(?:[.,]\d+)?)\s*(?:ects|lp|credit points?|cp)\b`)
	bareNumberRe = regexp.MustCompile(`\d{1,2}(?:[.,]\d+)?`)
)

// ParseCredit parses a credit value written with either a decimal point or a
// decimal comma.
func ParseCredit(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid credit value %q: %w", s, err)
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid credit value %q", s)
	}
	return v, nil
}

// creditCandidate picks the credit string from a lower-cased line: a number
// followed by a credit unit, otherwise the last number on the line.
func creditCandidate(low string) (string, bool) {
	if m := unitCreditRe.FindStringSubmatch(low); m != nil {
		return m[1], true
	}
	nums := bareNumberRe.FindAllString(low, -1)
	if len(nums) == 0 {
		return "", false
	}
	return nums[len(nums)-1], true
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func formatCredit(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func auditLine(mod Module, credits float64, line string) string {
	return fmt.Sprintf("%s -> %s:%s | %s", mod.Name, mod.Category, formatCredit(credits), line)
}

// ScanOverview sums credits per category from module-overview text.
//
// Lines without digits are skipped. A line with digits is unrecognized when
// no module name occurs in it or no credit value can be parsed from it.
// Categories outside categories are added to the sums as they appear.
func ScanOverview(text string, modules ModuleMap, categories []string) Result {
	res := newResult(categories, MethodModuleOverview)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		low := strings.ToLower(line)
		if !hasDigit(low) {
			continue
		}

		mod, ok := modules.Match(low)
		if !ok {
			res.Unrecognized = append(res.Unrecognized, line)
			continue
		}

		candidate, ok := creditCandidate(low)
		if !ok {
			res.Unrecognized = append(res.Unrecognized, line)
			continue
		}
		credits, err := ParseCredit(candidate)
		if err != nil {
			res.Unrecognized = append(res.Unrecognized, line)
			continue
		}

		res.add(mod, credits, line)
	}
	return res
}
