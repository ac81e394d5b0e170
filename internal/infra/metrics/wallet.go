package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(walletEntriesTotal) }

var walletEntriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wallet_entries_total",
		Help: "Ledger rows written through the wallet API, by type and direction.",
	},
	[]string{"type", "direction"},
)

func IncWalletEntry(typ, direction string) {
	walletEntriesTotal.WithLabelValues(norm(typ), norm(direction)).Inc()
}
