/*
Copyright © 2019 the ncedit authors.
This file is part of ncedit.

ncedit is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncedit is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncedit.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncedit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the outcomes of edits. One Metrics can be shared by
// the Editors of a batch run.
type Metrics struct {
	// Variables counts variables by outcome: "written", "dropped" or
	// "skipped".
	Variables *prometheus.CounterVec

	// Problems counts recoverable problems by kind.
	Problems *prometheus.CounterVec

	// Edits counts finished edit passes.
	Edits prometheus.Counter
}

// NewMetrics creates the edit metrics and registers them with reg. reg
// may be nil, in which case the metrics are not registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Variables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ncedit",
			Name:      "variables_total",
			Help:      "Variables processed, by outcome.",
		}, []string{"outcome"}),
		Problems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ncedit",
			Name:      "problems_total",
			Help:      "Recoverable problems met while editing, by kind.",
		}, []string{"kind"}),
		Edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncedit",
			Name:      "edits_total",
			Help:      "Completed edit passes.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Variables, m.Problems, m.Edits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) variable(outcome string) {
	if m != nil {
		m.Variables.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) problem(k ProblemKind) {
	if m != nil {
		m.Problems.WithLabelValues(k.String()).Inc()
	}
}

func (m *Metrics) edit() {
	if m != nil {
		m.Edits.Inc()
	}
}
