package observe

import "context"

// Combine3 joins three sources. Once each source has produced a value it
// emits fn over the latest value of every source, and again after each later
// emission of any source. The output closes when ctx is done or every source
// has closed.
func Combine3[A, B, C, R any](ctx context.Context, a <-chan A, b <-chan B, c <-chan C, fn func(A, B, C) R) <-chan R {
	out := make(chan R, 1)

	go func() {
		defer close(out)

		var (
			va                  A
			vb                  B
			vc                  C
			haveA, haveB, haveC bool
		)

		for a != nil || b != nil || c != nil {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-a:
				if !ok {
					a = nil
					continue
				}
				va, haveA = v, true
			case v, ok := <-b:
				if !ok {
					b = nil
					continue
				}
				vb, haveB = v, true
			case v, ok := <-c:
				if !ok {
					c = nil
					continue
				}
				vc, haveC = v, true
			}

			if haveA && haveB && haveC {
				sendLatest(out, fn(va, vb, vc))
			}
		}
	}()

	return out
}
