package a

type T struct{ n int }

type R struct{}

func (*R) Close() error { return nil }

func deref() int {
	var p *T
	return p.n // want `p is nil when accessing n`
}

func guarded(p *T) int {
	if p == nil {
		return 0
	}
	return p.n
}

func closeTwice() {
	r := &R{}
	r.Close()
	r.Close() // want `r is closed more than once`
}

func first() int {
	s := []int{}
	return s[0] // want `s is always empty here`
}
