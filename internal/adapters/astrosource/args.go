// Package astrosource runs the astrosource photometry pipeline as an
// external program.
package astrosource

import (
	"strconv"

	"github.com/manthysbr/skywatch/internal/core/domain"
)

func ff(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// BuildArgs renders the command line for one phase.
func BuildArgs(phase domain.Phase, p domain.JobParams) []string {
	t := p.Tuning
	args := []string{
		"--phase", string(phase),
		"--ra", ff(p.RA),
		"--dec", ff(p.Dec),
		"--indir", p.InputDir,
		"--matchradius", ff(p.MatchRadius),
	}

	tuning := []struct {
		name  string
		value string
	}{
		{"periodlower", ff(t.PeriodLower)},
		{"periodupper", ff(t.PeriodUpper)},
		{"periodtests", strconv.Itoa(t.PeriodTests)},
		{"thresholdcounts", strconv.Itoa(t.ThresholdCounts)},
		{"hicounts", strconv.Itoa(t.HiCounts)},
		{"lowcounts", strconv.Itoa(t.LowCounts)},
		{"lowestcounts", strconv.Itoa(t.LowestCounts)},
		{"starreject", ff(t.StarReject)},
		{"closerejectd", ff(t.CloseRejectD)},
		{"targetradius", ff(t.TargetRadius)},
		{"mincompstars", ff(t.MinCompStars)},
		{"mincompstarstotal", strconv.Itoa(t.MinCompStarsTotal)},
		{"maxcandidatestars", strconv.Itoa(t.MaxCandidateStars)},
		{"varsearchglobalstdev", ff(t.VarSearchGlobalStdev)},
		{"varsearchthresh", ff(t.VarSearchThresh)},
		{"varsearchstdev", ff(t.VarSearchStdev)},
		{"varsearchmagwidth", ff(t.VarSearchMagWidth)},
		{"varsearchminimages", ff(t.VarSearchMinImages)},
		{"ignoreedgefraction", ff(t.IgnoreEdgeFraction)},
		{"outliererror", ff(t.OutlierError)},
		{"outlierstdev", ff(t.OutlierStdev)},
		{"colourterm", ff(t.ColourTerm)},
		{"colourerror", ff(t.ColourError)},
		{"targetcolour", ff(t.TargetColour)},
		{"restrictcompcolourcentre", ff(t.RestrictCompColourCentre)},
		{"restrictcompcolourrange", ff(t.RestrictCompColourRange)},
		{"restrictmagbrightest", ff(t.RestrictMagBrightest)},
		{"restrictmagdimmest", ff(t.RestrictMagDimmest)},
		{"rejectmagbrightest", ff(t.RejectMagBrightest)},
		{"rejectmagdimmest", ff(t.RejectMagDimmest)},
	}
	for _, kv := range tuning {
		// "=" keeps negative values from being read as flags.
		args = append(args, "--"+kv.name+"="+kv.value)
	}

	// photometry and plot persist their artifacts next to the input frames.
	if phase != domain.PhaseAnalyse {
		args = append(args, "--filesave")
	}
	return args
}
