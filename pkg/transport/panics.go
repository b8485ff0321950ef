package transport

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// HandlePanics must be deferred directly. It recovers a panic, reports it to
// every transport with HandleExceptions set, waits for them to finish and
// re-panics with the original value.
func HandlePanics(ts ...Transport) {
	r := recover()
	if r == nil {
		return
	}

	meta := map[string]interface{}{
		"panic": fmt.Sprint(r),
		"stack": string(debug.Stack()),
	}
	msg := fmt.Sprintf("uncaught panic: %v", r)

	var wg sync.WaitGroup
	for _, t := range ts {
		if !t.HandleExceptions() {
			continue
		}
		wg.Add(1)
		t.Log("error", msg, meta, func(error) { wg.Done() })
	}
	wg.Wait()

	panic(r)
}
