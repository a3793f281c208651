package observability

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"epochstake/core/events"
)

type stakingMetrics struct {
	operations *prometheus.CounterVec
	staked     *prometheus.CounterVec
	unstaked   *prometheus.CounterVec
	rewards    *prometheus.CounterVec
	transfers  *prometheus.CounterVec
}

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *stakingMetrics
)

// Staking returns the registry tracking committed staking events.
func Staking() *stakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &stakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochstake",
				Subsystem: "events",
				Name:      "operations_total",
				Help:      "Committed staking events segmented by type.",
			}, []string{"type"}),
			staked: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochstake",
				Subsystem: "events",
				Name:      "staked_units_total",
				Help:      "Units moved into the pool segmented by epoch.",
			}, []string{"epoch"}),
			unstaked: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochstake",
				Subsystem: "events",
				Name:      "unstaked_units_total",
				Help:      "Principal returned to owners segmented by epoch.",
			}, []string{"epoch"}),
			rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochstake",
				Subsystem: "events",
				Name:      "reward_units_total",
				Help:      "Reward units paid segmented by epoch.",
			}, []string{"epoch"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochstake",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of bank transfers segmented by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.staked,
			stakingRegistry.unstaked,
			stakingRegistry.rewards,
			stakingRegistry.transfers,
		)
	})
	return stakingRegistry
}

// Emit implements events.Emitter so the registry can sit on the event bus.
func (m *stakingMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.operations.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.StakeStaked:
		m.staked.WithLabelValues(epochLabel(e.Epoch)).Add(float64(e.Amount))
	case events.StakeUnstaked:
		m.unstaked.WithLabelValues(epochLabel(e.Epoch)).Add(float64(e.Principal))
		m.rewards.WithLabelValues(epochLabel(e.Epoch)).Add(float64(e.Reward))
	case events.Transfer:
		m.RecordTransfer(e.Asset)
	}
}

// RecordTransfer increments the transfer counter for the supplied asset ticker.
func (m *stakingMetrics) RecordTransfer(asset string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.transfers.WithLabelValues(normalized).Inc()
}

func epochLabel(epoch uint8) string {
	return strconv.FormatUint(uint64(epoch), 10)
}
