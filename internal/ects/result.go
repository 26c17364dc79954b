package ects

// Method tags name the strategy that produced a Result. The FAILED_* tags
// are matched verbatim by callers.
const (
	MethodModuleOverview      = "module_overview_simple"
	MethodModuleOverviewEmpty = "module_overview_empty"
	MethodHOCRLayout          = "hocr_layout"
	MethodVertexLayout        = "vertex_layout"
	MethodFailedNoFile        = "FAILED_NOFILE"
	MethodFailedTimeout       = "FAILED_TIMEOUT"
	MethodFailedError         = "FAILED_ERROR"
)

// Result is the outcome of one extraction.
type Result struct {
	// Sums holds credits per category; every requested category is present.
	Sums map[string]float64 `json:"sums" firestore:"sums"`
	// Matched lists one audit line per credited module.
	Matched []string `json:"matched" firestore:"matched"`
	// Unrecognized lists raw lines that carried digits but no usable module
	// or credit value.
	Unrecognized []string `json:"unrecognized" firestore:"unrecognized"`
	Method       string   `json:"method" firestore:"method"`
}

func newResult(categories []string, method string) Result {
	sums := make(map[string]float64, len(categories))
	for _, c := range categories {
		sums[c] = 0
	}
	return Result{Sums: sums, Matched: []string{}, Unrecognized: []string{}, Method: method}
}

// Failed returns a zero result carrying a failure tag.
func Failed(categories []string, method string) Result {
	return newResult(categories, method)
}

func (r *Result) add(mod Module, credits float64, line string) {
	r.Sums[mod.Category] += credits
	r.Matched = append(r.Matched, auditLine(mod, credits, line))
}

// withCategories makes sure every requested category has a sum.
func (r Result) withCategories(categories []string) Result {
	if r.Sums == nil {
		r.Sums = make(map[string]float64, len(categories))
	}
	for _, c := range categories {
		if _, ok := r.Sums[c]; !ok {
			r.Sums[c] = 0
		}
	}
	if r.Matched == nil {
		r.Matched = []string{}
	}
	if r.Unrecognized == nil {
		r.Unrecognized = []string{}
	}
	return r
}

// Total is the sum over every category.
func (r Result) Total() float64 {
	total := 0.0
	for _, v := range r.Sums {
		total += v
	}
	return total
}

// Failed reports whether the result carries a failure tag.
func (r Result) Failed() bool {
	switch r.Method {
	case MethodFailedNoFile, MethodFailedTimeout, MethodFailedError:
		return true
	}
	return false
}
