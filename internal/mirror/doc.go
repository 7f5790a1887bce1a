// Package mirror wires the photo source, the destination store, manifests
// and run history into an engine and runs it over one or more albums.
//
// # Manager
//
// The Manager is what the commands talk to:
//
//  1. Resolve the account and list its albums
//  2. Queue one engine.Job per requested album
//  3. Run the jobs one after another, recording each run
//
// # Basic Usage
//
//	manager, err := mirror.NewManager(settings, log, func(event engine.ProgressEvent) {
//	    fmt.Println(event.Message)
//	})
//	if err != nil {
//	    return err
//	}
//	defer manager.Close()
//
//	err = manager.Initialize(ctx, mirror.Request{Account: "durov", Albums: "profile,wall", Cap: transfer.Cap{N: 5}})
//	if err != nil {
//	    return err
//	}
//
//	reports, err := manager.Start(ctx)
//
// Start keeps going after an album fails for any reason other than bad
// credentials or cancellation; the errors of failed albums are combined.
package mirror
