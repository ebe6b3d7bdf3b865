package solver

import (
	"github.com/sirupsen/logrus"

	"github.com/relfind/relfind/pkg/instance"
	"github.com/relfind/relfind/pkg/symmetry"
)

// Reporter receives progress events during solving. Implementations
// must tolerate concurrent calls: remainder workers report from their
// own goroutines.
type Reporter interface {
	// DetectingSymmetries fires before symmetry detection on bounds.
	DetectingSymmetries(b *instance.Bounds)
	// DetectedSymmetries fires with the detected partition.
	DetectedSymmetries(p *symmetry.Partition)
	// ReportConfigs fires once per decomposed run, after the partial
	// problem is exhausted, with the number of configurations found
	// and the partial problem's variable and clause counts.
	ReportConfigs(configs, vars, primaryVars, clauses int)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) DetectingSymmetries(*instance.Bounds)            {}
func (NopReporter) DetectedSymmetries(*symmetry.Partition)          {}
func (NopReporter) ReportConfigs(configs, vars, pvars, clauses int) {}

// LogReporter writes events to a logger.
type LogReporter struct {
	Log logrus.FieldLogger
}

func (r LogReporter) DetectingSymmetries(b *instance.Bounds) {
	r.Log.WithField("relations", len(b.Relations())).Debug("detecting symmetries")
}

func (r LogReporter) DetectedSymmetries(p *symmetry.Partition) {
	r.Log.WithField("classes", p.Len()).Debug("detected symmetries")
}

func (r LogReporter) ReportConfigs(configs, vars, pvars, clauses int) {
	r.Log.WithFields(logrus.Fields{
		"configs":   configs,
		"variables": vars,
		"primary":   pvars,
		"clauses":   clauses,
	}).Debug("partial problem exhausted")
}
