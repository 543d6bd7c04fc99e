// Package restq is a small client-side HTTP/JSON mapping library.
//
// A Call declaratively describes one request: target path, verb, optional
// parameter payload (header fields, URL query components, or a JSON body),
// and an optional root key used to locate the relevant sub-document in the
// response. A Service turns Calls into transport requests and classifies
// completed responses into tagged Results (object, array, acknowledgement,
// failure, not-found).
//
// A Queue batches calls against one shared session: it tracks the set of
// in-flight handles and fires a batch completion callback exactly once,
// after the last outstanding call finishes, then releases the session.
//
// The entity subpackage maps classified JSON objects into a persistence
// layer through a small Repository interface with lookup-or-create
// semantics keyed by a unique attribute.
//
// Basic usage:
//
//	svc, err := restq.NewService(restq.Config{BaseURL: "https://api.example.com"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	queue := restq.NewQueue(svc, func(failed mapset.Set[*restq.Handle], errs []error) {
//		log.Printf("batch done, %d failures", len(errs))
//	})
//	queue.PerformJSON(restq.NewCall(restq.GET, "/users").WithRootKey("results"), true, func(res restq.Result) {
//		if res.Kind == restq.ResultArray {
//			// use res.Array
//		}
//	})
//	queue.Wait()
package restq
