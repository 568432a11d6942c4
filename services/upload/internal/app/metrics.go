package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papercast_uploads_submitted_total",
		Help: "Upload intake attempts by result.",
	}, []string{"result"})
	uploadTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papercast_upload_transitions_total",
		Help: "Applied upload status transitions.",
	}, []string{"from", "to"})
	blobDeleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papercast_blob_delete_failures_total",
		Help: "Blob deletions that failed and were left for the reconciler.",
	})
	orphansDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papercast_orphans_deleted_total",
		Help: "Pending blobs removed because no record referenced them.",
	})
)

// intake results
const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultStorage  = "storage_error"
	resultDatabase = "database_error"
)
