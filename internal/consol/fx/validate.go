package fx

import (
	"fmt"
	"sort"
	"strings"
)

// Requirement declares which rate methods must be available for a pair.
type Requirement struct {
	Pair    string
	Methods []Method
}

// Gap lists the methods missing for a pair.
type Gap struct {
	Pair    string
	Methods []Method
}

// Validate checks that every requested method is available in the rate set
// and returns one gap per deficient pair, sorted by pair. Used by the
// consolidation validation step to surface every rate problem in one pass.
func Validate(rates RateSet, reqs []Requirement) ([]Gap, error) {
	required := make(map[string]map[Method]struct{})
	for _, req := range reqs {
		pair := strings.ToUpper(strings.TrimSpace(req.Pair))
		if pair == "" {
			return nil, fmt.Errorf("fx: pair required")
		}
		if len(req.Methods) == 0 {
			return nil, fmt.Errorf("fx: methods required for pair %s", pair)
		}
		set := required[pair]
		if set == nil {
			set = make(map[Method]struct{}, len(req.Methods))
			required[pair] = set
		}
		for _, method := range req.Methods {
			switch method {
			case MethodClosing, MethodAverage, MethodOpening:
				set[method] = struct{}{}
			default:
				return nil, fmt.Errorf("fx: unsupported method %q for pair %s", method, pair)
			}
		}
	}

	pairs := make([]string, 0, len(required))
	for pair := range required {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	gaps := make([]Gap, 0)
	for _, pair := range pairs {
		quote, ok := rates.Quote(pair)
		if !ok {
			gaps = append(gaps, Gap{Pair: pair, Methods: sortedMethods(required[pair])})
			continue
		}
		missing := make([]Method, 0)
		for method := range required[pair] {
			if !quote.Rate(method).IsPositive() {
				missing = append(missing, method)
			}
		}
		if len(missing) > 0 {
			sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
			gaps = append(gaps, Gap{Pair: pair, Methods: missing})
		}
	}
	return gaps, nil
}

func sortedMethods(set map[Method]struct{}) []Method {
	out := make([]Method, 0, len(set))
	for method := range set {
		out = append(out, method)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
