package wire

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/contractver"
)

// MeetsMinimum reports whether got satisfies a "same major, minor >=
// want's minor" floor against want, both in the "abp/vMAJOR.MINOR"
// grammar. contractver.IsCompatible only checks major equality; this
// adds a minor floor on top, expressed as a semver constraint so the
// comparison logic isn't hand-rolled twice. The sidecar handshake does
// not call it: NewClient accepts any hello whose major matches.
func MeetsMinimum(want, got string) (bool, error) {
	wv, ok := contractver.Parse(want)
	if !ok {
		return false, fmt.Errorf("wire: invalid version %q", want)
	}
	gv, ok := contractver.Parse(got)
	if !ok {
		return false, fmt.Errorf("wire: invalid version %q", got)
	}
	if wv.Major != gv.Major {
		return false, nil
	}

	constraint, err := semver.NewConstraint(fmt.Sprintf(">= %d.%d.0", wv.Major, wv.Minor))
	if err != nil {
		return false, fmt.Errorf("wire: building constraint: %w", err)
	}
	gotVer, err := semver.NewVersion(fmt.Sprintf("%d.%d.0", gv.Major, gv.Minor))
	if err != nil {
		return false, fmt.Errorf("wire: parsing candidate version: %w", err)
	}
	return constraint.Check(gotVer), nil
}
