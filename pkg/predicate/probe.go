package predicate

// translatedOnly lists the calls that only the literal translator can render.
var translatedOnly = map[string]bool{
	MethodEquals:  true,
	MethodToLower: true,
	MethodToUpper: true,
}

// NeedsTranslation reports whether e calls Equals, ToLower or ToUpper anywhere in
// the tree. Such predicates must go through Translate; the rest may be handed to
// a store's native typed-predicate support.
func NeedsTranslation(e *Expr) bool {
	return firstTranslated(e) != ""
}

func firstTranslated(e *Expr) string {
	found := ""
	Walk(e, func(n *Expr) bool {
		if n.Kind == KindCall && translatedOnly[n.Method] {
			found = n.Method
			return false
		}
		return true
	})
	return found
}

// Methods returns the distinct method names called in e, in visiting order.
func Methods(e *Expr) []string {
	var names []string
	seen := make(map[string]bool)
	Walk(e, func(n *Expr) bool {
		if n.Kind == KindCall && !seen[n.Method] {
			seen[n.Method] = true
			names = append(names, n.Method)
		}
		return true
	})
	return names
}

// Walk visits e and its descendants depth first, receiver before arguments. It
// stops as soon as fn returns false.
func Walk(e *Expr, fn func(*Expr) bool) {
	walk(e, fn)
}

func walk(e *Expr, fn func(*Expr) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	if !walk(e.Left, fn) || !walk(e.Right, fn) {
		return false
	}
	for _, a := range e.Args {
		if !walk(a, fn) {
			return false
		}
	}
	return true
}
