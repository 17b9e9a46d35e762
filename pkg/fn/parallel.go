package fn

import "sync"

// Both runs fa and fb concurrently and returns when both are done.
func Both[A, B any](fa func() A, fb func() B) (A, B) {
	var (
		a  A
		wg sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a = fa()
	}()
	b := fb()
	wg.Wait()
	return a, b
}
