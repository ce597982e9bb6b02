package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.ObserveCommand("success")
		c.SetPendingCommands(3)
		c.SetActiveWorkers(2)
		c.ObserveDecodeError("bad_crc")
	})
}

func TestObserveCommandIncrementsLabeledCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveCommand("success")
	c.ObserveCommand("success")
	c.ObserveCommand("timeout")

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, fam := range families {
		if fam.GetName() != "serclient_commands_total" {
			continue
		}
		for _, m := range fam.Metric {
			got[labelValue(m, "result")] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, 2.0, got["success"])
	require.Equal(t, 1.0, got["timeout"])
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.Label {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
