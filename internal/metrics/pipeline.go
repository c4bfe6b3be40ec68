// Package metrics provides Prometheus metrics for the capture, presentation
// and encode paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline label values.
const (
	PipelinePreview = "preview"
	PipelineEncode  = "encode"
)

var (
	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenrec",
		Subsystem: "capture",
		Name:      "frames_delivered_total",
		Help:      "Frames handed from the frame pool to a consumer",
	}, []string{"pipeline"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenrec",
		Subsystem: "capture",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded because the pool was full or a newer frame superseded them",
	}, []string{"pipeline"})

	poolRecreations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenrec",
		Subsystem: "capture",
		Name:      "pool_recreations_total",
		Help:      "Frame pool recreations after a content size change",
	}, []string{"pipeline"})

	surfaceResizes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "screenrec",
		Subsystem: "surface",
		Name:      "resizes_total",
		Help:      "Swap chain buffer resizes",
	})

	surfacePresents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "screenrec",
		Subsystem: "surface",
		Name:      "presents_total",
		Help:      "Frames presented to a swap chain",
	})

	samplesProduced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "screenrec",
		Subsystem: "encoder",
		Name:      "samples_total",
		Help:      "Video samples reported to the transcoder",
	})

	sampleFaults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "screenrec",
		Subsystem: "encoder",
		Name:      "sample_faults_total",
		Help:      "Faults caught while producing a sample",
	})

	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "screenrec",
		Subsystem: "encoder",
		Name:      "recording_active",
		Help:      "1 while a recording is in progress",
	})
)

// IncFramesDelivered records one frame delivered to a pipeline's consumer.
func IncFramesDelivered(pipeline string) {
	framesDelivered.WithLabelValues(pipeline).Inc()
}

// IncFramesDropped records one dropped frame.
func IncFramesDropped(pipeline string) {
	framesDropped.WithLabelValues(pipeline).Inc()
}

// IncPoolRecreations records a frame pool recreation.
func IncPoolRecreations(pipeline string) {
	poolRecreations.WithLabelValues(pipeline).Inc()
}

// IncSurfaceResizes records a swap chain resize.
func IncSurfaceResizes() {
	surfaceResizes.Inc()
}

// IncSurfacePresents records a present.
func IncSurfacePresents() {
	surfacePresents.Inc()
}

// IncSamples records a sample handed to the transcoder.
func IncSamples() {
	samplesProduced.Inc()
}

// IncSampleFaults records a caught sample-production fault.
func IncSampleFaults() {
	sampleFaults.Inc()
}

// SetRecordingActive toggles the recording gauge.
func SetRecordingActive(active bool) {
	if active {
		recordingActive.Set(1)
		return
	}
	recordingActive.Set(0)
}
