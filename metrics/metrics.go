// Package metrics exposes client counters on the go-ethereum metrics registry.
package metrics

import (
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
)

var (
	predictions        = gethmetrics.GetOrRegisterCounter("lazyaccount/account/predictions", nil)
	predictionFailures = gethmetrics.GetOrRegisterCounter("lazyaccount/account/prediction_failures", nil)
	nonceLookups       = gethmetrics.GetOrRegisterCounter("lazyaccount/nonce/lookups", nil)

	submittedBatches = gethmetrics.GetOrRegisterCounter("lazyaccount/submitter/batches", nil)
	submittedOps     = gethmetrics.GetOrRegisterCounter("lazyaccount/submitter/ops", nil)
	submitFailures   = gethmetrics.GetOrRegisterCounter("lazyaccount/submitter/failures", nil)

	included  = gethmetrics.GetOrRegisterCounter("lazyaccount/inclusion/included", nil)
	reverted  = gethmetrics.GetOrRegisterCounter("lazyaccount/inclusion/reverted", nil)
	timedOut  = gethmetrics.GetOrRegisterCounter("lazyaccount/inclusion/timed_out", nil)
	awaitTime = gethmetrics.GetOrRegisterTimer("lazyaccount/inclusion/wait", nil)
)

// RecordPrediction counts a planned deployment.
func RecordPrediction(err error) {
	if err != nil {
		predictionFailures.Inc(1)
		return
	}
	predictions.Inc(1)
}

func RecordNonceLookup() { nonceLookups.Inc(1) }

// RecordSubmission counts one handleOps broadcast of n operations.
func RecordSubmission(n int, err error) {
	if err != nil {
		submitFailures.Inc(1)
		return
	}
	submittedBatches.Inc(1)
	submittedOps.Inc(int64(n))
}

func RecordIncluded(start time.Time) {
	included.Inc(1)
	awaitTime.UpdateSince(start)
}

func RecordReverted(start time.Time) {
	reverted.Inc(1)
	awaitTime.UpdateSince(start)
}

func RecordTimedOut() { timedOut.Inc(1) }
