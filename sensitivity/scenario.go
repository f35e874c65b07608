package sensitivity

import (
	"fmt"
	"strconv"
	"strings"
)

// RiskFactorKey names one shifted market observable, e.g. DiscountCurve/EUR/3.
type RiskFactorKey struct {
	Type  string
	Name  string
	Index int
}

func (k RiskFactorKey) String() string {
	return k.Type + "/" + k.Name + "/" + strconv.Itoa(k.Index)
}

// ParseRiskFactorKey reads Type/Name/Index. Name may itself contain '/'.
func ParseRiskFactorKey(s string) (RiskFactorKey, error) {
	first := strings.IndexByte(s, '/')
	last := strings.LastIndexByte(s, '/')
	if first <= 0 || last == first || last == len(s)-1 {
		return RiskFactorKey{}, fmt.Errorf("sensitivity: bad risk factor key %q", s)
	}
	idx, err := strconv.Atoi(s[last+1:])
	if err != nil || idx < 0 {
		return RiskFactorKey{}, fmt.Errorf("sensitivity: bad index in risk factor key %q", s)
	}
	return RiskFactorKey{Type: s[:first], Name: s[first+1 : last], Index: idx}, nil
}

type Kind uint8

const (
	Base Kind = iota
	Up
	Down
	Cross
)

func (k Kind) String() string {
	switch k {
	case Base:
		return "Base"
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Cross:
		return "Cross"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ScenarioDescription records how one cube row was generated. Key1 is set for
// Up, Down and Cross; Key2 only for Cross.
type ScenarioDescription struct {
	Kind Kind
	Key1 RiskFactorKey
	Key2 RiskFactorKey
}

func BaseScenario() ScenarioDescription { return ScenarioDescription{Kind: Base} }

func UpScenario(k RiskFactorKey) ScenarioDescription {
	return ScenarioDescription{Kind: Up, Key1: k}
}

func DownScenario(k RiskFactorKey) ScenarioDescription {
	return ScenarioDescription{Kind: Down, Key1: k}
}

func CrossScenario(k1, k2 RiskFactorKey) ScenarioDescription {
	return ScenarioDescription{Kind: Cross, Key1: k1, Key2: k2}
}

// Factor is the factor column of the reports: key1, or key1:key2 for Cross.
func (s ScenarioDescription) Factor() string {
	switch s.Kind {
	case Base:
		return ""
	case Cross:
		return s.Key1.String() + ":" + s.Key2.String()
	}
	return s.Key1.String()
}

func (s ScenarioDescription) String() string {
	if s.Kind == Base {
		return "Base"
	}
	return s.Kind.String() + ":" + s.Factor()
}

func ParseScenarioDescription(s string) (ScenarioDescription, error) {
	parts := strings.Split(s, ":")
	bad := fmt.Errorf("sensitivity: bad scenario description %q", s)

	switch parts[0] {
	case "Base":
		if len(parts) != 1 {
			return ScenarioDescription{}, bad
		}
		return BaseScenario(), nil
	case "Up", "Down":
		if len(parts) != 2 {
			return ScenarioDescription{}, bad
		}
		k, err := ParseRiskFactorKey(parts[1])
		if err != nil {
			return ScenarioDescription{}, err
		}
		if parts[0] == "Up" {
			return UpScenario(k), nil
		}
		return DownScenario(k), nil
	case "Cross":
		if len(parts) != 3 {
			return ScenarioDescription{}, bad
		}
		k1, err := ParseRiskFactorKey(parts[1])
		if err != nil {
			return ScenarioDescription{}, err
		}
		k2, err := ParseRiskFactorKey(parts[2])
		if err != nil {
			return ScenarioDescription{}, err
		}
		return CrossScenario(k1, k2), nil
	}
	return ScenarioDescription{}, bad
}

// CrossFilter decides whether a pair of factors gets a Cross scenario.
type CrossFilter func(k1, k2 RiskFactorKey) bool

// AllPairs accepts every pair.
func AllPairs(RiskFactorKey, RiskFactorKey) bool { return true }

// SameType accepts pairs of factors of one type.
func SameType(k1, k2 RiskFactorKey) bool { return k1.Type == k2.Type }

// BuildCatalog lays out the rows of a sensitivity run: Base, then Up and Down
// for each factor, then Cross for each accepted pair (i < j) of factors. A nil
// filter means no Cross rows.
func BuildCatalog(factors []RiskFactorKey, filter CrossFilter) []ScenarioDescription {
	out := make([]ScenarioDescription, 0, 1+2*len(factors))
	out = append(out, BaseScenario())
	for _, k := range factors {
		out = append(out, UpScenario(k))
	}
	for _, k := range factors {
		out = append(out, DownScenario(k))
	}
	if filter == nil {
		return out
	}
	for i := range factors {
		for j := i + 1; j < len(factors); j++ {
			if filter(factors[i], factors[j]) {
				out = append(out, CrossScenario(factors[i], factors[j]))
			}
		}
	}
	return out
}
