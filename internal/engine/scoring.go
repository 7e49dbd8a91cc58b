package engine

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/miradorstack/mirador-reliability/internal/models"
)

const minutesPerDay = 1440

// ScoreInput holds the counts folded into one key's reliability score.
type ScoreInput struct {
	NewIssues           int
	SevereNewIssues     int
	Regressions         int
	CriticalRegressions int
	Slowdowns           int
	SevereSlowdowns     int
	ActiveMinutes       int
}

// ScoreInputFor builds the score input of a joined report row.
func ScoreInputFor(r models.ReportKeyResult) ScoreInput {
	return ScoreInput{
		NewIssues:           r.Regression.NewIssues,
		SevereNewIssues:     r.Regression.SevereNewIssues,
		Regressions:         r.Regression.Regressions,
		CriticalRegressions: r.Regression.CriticalRegressions,
		Slowdowns:           r.Slowdown.Slowdowns,
		SevereSlowdowns:     r.Slowdown.SevereSlowdowns,
		ActiveMinutes:       r.Regression.Window.ActiveMinutes,
	}
}

// Score folds regression and slowdown counts into a reliability score in [0, 100]. The penalty is
// normalised per day of active window, counting windows shorter than a day as one day.
func Score(in ScoreInput, w models.ScoreWeights) float64 {
	days := max(1, float64(in.ActiveMinutes)/minutesPerDay)
	penalty := float64(in.NewIssues)*w.NewEvent +
		float64(in.SevereNewIssues)*w.SevereNewEvent +
		float64(in.CriticalRegressions+in.SevereSlowdowns)*w.CriticalRegression +
		float64(in.Regressions+in.Slowdowns)*w.Regression
	return max(100-w.Weight*(penalty/days), 0)
}

// CompareDeploymentNames orders deployment names newest first. The leading dotted number found in each
// name is compared as a semantic version, so "1.10" is newer than "1.9". Names without a version sort
// last; equal versions fall back to the name.
func CompareDeploymentNames(a, b string) int {
	va, vb := deploymentVersion(a), deploymentVersion(b)
	switch {
	case va == nil && vb == nil:
		return strings.Compare(a, b)
	case va == nil:
		return 1
	case vb == nil:
		return -1
	}
	if c := vb.Compare(va); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// SortDeployments sorts names in place, newest first.
func SortDeployments(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return CompareDeploymentNames(names[i], names[j]) < 0
	})
}

// deploymentVersion parses the first dotted number of name, keeping at most major.minor.patch.
func deploymentVersion(name string) *semver.Version {
	start := strings.IndexFunc(name, isDigit)
	if start < 0 {
		return nil
	}
	end := start
	for end < len(name) && (isDigit(rune(name[end])) || name[end] == '.') {
		end++
	}

	parts := strings.FieldsFunc(name[start:end], func(r rune) bool { return r == '.' })
	if len(parts) > 3 {
		parts = parts[:3]
	}
	v, err := semver.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return nil
	}
	return v
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
