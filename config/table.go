package config

import (
	"fmt"

	"github.com/BertoldVdb/qereclaim/reclaim"
)

// Table builds the strategy table: the built-in rules minus the disabled
// ones, with the configured rules taking precedence.
func (v VendorsConfig) Table() (*reclaim.Table, error) {
	var rules []reclaim.Rule
	for _, r := range v.Rules {
		s := reclaim.Strategy{
			Name:        r.Name,
			PreserveSR3: r.PreserveSR3,
		}
		for _, a := range r.Attempts {
			attempt, err := a.attempt()
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			s.Attempts = append(s.Attempts, attempt)
		}

		rules = append(rules, reclaim.Rule{
			Name:            r.Name,
			Vendor:          r.Vendor,
			IDMask:          r.IDMask,
			IDMatch:         r.IDMatch,
			SFDPFingerprint: r.SFDPFingerprint,
			Strategy:        s,
		})
	}

	return reclaim.DefaultTable().Without(v.Disable...).With(rules...)
}
