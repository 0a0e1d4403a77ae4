// Package railscan builds and supervises a single-stream DeepStream
// detection pipeline: URI source, stream mux, primary inference,
// on-screen display and render sink.
//
// The package is engine-neutral. It drives an Engine (the go-gst backed
// implementation lives in internal/gstreamer) through a fixed lifecycle:
//
//	Null --Build--> Ready --Play--> Playing --Run--> Stopped
//
// Teardown returns the engine to NULL and releases every handle exactly once.
//
// # Quick Start
//
//	cfg := railscan.DefaultPipelineConfig()
//	cfg.Source.URI = "file:///data/railway_fault640_640.mp4"
//	cfg.Inference.ConfigFilePath = "config_infer_primary_yoloV11.txt"
//
//	ctrl, err := railscan.NewController(gstreamer.New(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	outcome, err := ctrl.Execute()
//
// Execute prints "Pipeline is running..." once PLAYING is accepted and
// "End of stream" when the graph drains. A runtime error is printed to
// stderr as
//
//	ERROR from element <name>: <message>
//	Debugging info: <debug or none>
//
// and returned as a *RuntimeError.
//
// # Errors
//
//   - StageCreationError: a plugin could not be instantiated (missing factory)
//   - PropertyError: a stage rejected a configured property
//   - LinkError: two adjacent stages could not be connected
//   - TransitionError: the engine refused PLAYING
//   - RuntimeError: the running graph posted an error on the bus
//
// None of them are retried. Runtime errors carry an ErrorCategory and a
// troubleshooting hint.
//
// # Interrupts
//
// Interrupt may be called from any goroutine (typically a signal
// handler). The first call sends end-of-stream into the pipeline so sinks
// flush; a second call, or a refused event, posts end-of-stream directly
// on the bus.
package railscan
