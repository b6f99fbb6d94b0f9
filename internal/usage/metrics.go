package usage

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exoclaw_tokens_total",
		Help: "Total tokens metered by the budget meter, by provider/model/direction.",
	}, []string{"provider", "model", "direction"})

	costTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exoclaw_cost_usd_total",
		Help: "Estimated USD cost of metered completions, by provider/model.",
	}, []string{"provider", "model"})
)

func init() {
	prometheus.MustRegister(tokensTotal, costTotal)
}

func recordTokens(provider, model string, inputTokens, outputTokens uint64, cost float64) {
	tokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	tokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	costTotal.WithLabelValues(provider, model).Add(cost)
}
