package email

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var totalRepliesWritten = promauto.NewCounter(prometheus.CounterOpts{
	Name: "muia_rag_email_replies_total",
	Help: "Replies sent or drafted by the email agent.",
})
