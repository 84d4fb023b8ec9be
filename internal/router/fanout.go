package router

import (
	"context"
	"sync"
)

// FanOutResult is the outcome of one model's query in a fan-out.
type FanOutResult struct {
	Model    string
	Response *Response
	Err      error
}

// FanOut queries every model concurrently and returns a result for each.
// The returned map's keyset always equals the input model set: failures are
// recorded with their error rather than omitted. One model's failure or
// slowness never affects its siblings; cancelling ctx stops all of them.
func (r *Router) FanOut(ctx context.Context, modelIDs []string, req Request) map[string]FanOutResult {
	resultsCh := make(chan FanOutResult, len(modelIDs))

	var wg sync.WaitGroup
	for _, modelID := range modelIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			resp, err := r.Dispatch(ctx, id, req)
			resultsCh <- FanOutResult{Model: id, Response: resp, Err: err}
		}(modelID)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	results := make(map[string]FanOutResult, len(modelIDs))
	for res := range resultsCh {
		results[res.Model] = res
	}
	return results
}
