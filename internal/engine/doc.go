// Package engine coordinates a mirror run.
//
// An Engine drives one job through the whole pipeline:
//
//	resolve account → fetch → reduce → allocate → reconcile → verify → persist manifest
//
// The source, the store and the manifest writer are interfaces from package
// model, so the same engine runs against VK and Yandex Disk, an S3 bucket,
// or the in-memory fakes used in tests.
//
// # Usage
//
//	eng := engine.New(vkClient, disk, manifests, settings.ToEngineOptions(),
//	    engine.WithProgress(func(ev engine.ProgressEvent) { log.Info(ev.Message) }),
//	    engine.WithRecorder(history),
//	)
//	report, err := eng.Run(ctx, engine.Job{Account: "durov", Album: "profile", Cap: transfer.Cap{N: 5}})
//
// Run returns an error only for conditions that stop the run. Per-photo
// failures are collected in the Report; Report.Err combines them.
package engine
