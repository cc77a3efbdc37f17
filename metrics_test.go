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
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spatialmodel/ncedit/dataset"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("registering twice should fail")
	}
	in := testDataset(t)
	tmpl := template(t, in)
	tmpl.Updates.Drop = []string{"flag"}
	tmpl.Updates.Funcx["x"] = []string{"x/0"}
	e, err := NewEditor(tmpl, WithLogger(quietLogger()), WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Edit(context.Background(), in, dataset.NewMemory()); err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		c    prometheus.Collector
		want float64
	}{
		{m.Variables.WithLabelValues("written"), 6},
		{m.Variables.WithLabelValues("dropped"), 1},
		{m.Problems.WithLabelValues(ExpressionSkipped.String()), 1},
		{m.Edits, 1},
	} {
		if have := testutil.ToFloat64(test.c); have != test.want {
			t.Errorf("have %g, want %g", have, test.want)
		}
	}
}
