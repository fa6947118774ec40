package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// bookOps counts service operations by name and outcome
// (ok, invalid_input, already_exists, not_found, error).
var bookOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "book_operations_total",
		Help: "Book service operations by outcome.",
	},
	[]string{"op", "result"},
)

func init() {
	prometheus.MustRegister(bookOps)
}

func observe(op string, err error) {
	bookOps.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
