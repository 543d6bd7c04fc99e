package restq

// NodeKind classifies a decoded JSON value after root extraction.
type NodeKind string

const (
	NodeArray    NodeKind = "array"
	NodeObject   NodeKind = "object"
	NodeNotFound NodeKind = "not_found"
)

// Node is a decoded JSON value classified by shape. For NodeNotFound the
// unmatched value is retained in Raw for diagnostics.
type Node struct {
	Kind   NodeKind
	Array  []any
	Object map[string]any
	Raw    any
}

// RootNode applies root extraction to a decoded JSON value and classifies
// the result. If rootKey is set and the value is an object, the value at
// that key is extracted first; otherwise the value passes through unchanged.
func RootNode(v any, rootKey string) Node {
	if rootKey != "" {
		if obj, ok := v.(map[string]any); ok {
			v = obj[rootKey]
		}
	}

	switch n := v.(type) {
	case []any:
		return Node{Kind: NodeArray, Array: n, Raw: n}
	case map[string]any:
		return Node{Kind: NodeObject, Object: n, Raw: n}
	default:
		return Node{Kind: NodeNotFound, Raw: v}
	}
}

// ResultKind tags the outcome variant of a completed read call.
type ResultKind string

const (
	ResultObject   ResultKind = "object"
	ResultArray    ResultKind = "array"
	ResultAck      ResultKind = "ack"
	ResultFailure  ResultKind = "failure"
	ResultNotFound ResultKind = "not_found"
)

// Result is the outcome of a read call. Exactly one variant is populated
// per completed call, selected by Kind.
type Result struct {
	Kind   ResultKind
	Object map[string]any // ResultObject
	Array  []any          // ResultArray
	Err    error          // ResultFailure
	Raw    any            // raw decoded value; diagnostics for ResultNotFound
}

// Failed reports whether the result is a failure.
func (r Result) Failed() bool { return r.Kind == ResultFailure }

// Node converts a classified read result back into its node form.
// Ack and failure results map onto a not-found node.
func (r Result) Node() Node {
	switch r.Kind {
	case ResultArray:
		return Node{Kind: NodeArray, Array: r.Array, Raw: r.Array}
	case ResultObject:
		return Node{Kind: NodeObject, Object: r.Object, Raw: r.Object}
	default:
		return Node{Kind: NodeNotFound, Raw: r.Raw}
	}
}

func objectResult(obj map[string]any) Result {
	return Result{Kind: ResultObject, Object: obj, Raw: obj}
}

func arrayResult(arr []any) Result {
	return Result{Kind: ResultArray, Array: arr, Raw: arr}
}

func ackResult() Result {
	return Result{Kind: ResultAck}
}

func failureResult(err error) Result {
	return Result{Kind: ResultFailure, Err: err}
}

func notFoundResult(raw any) Result {
	return Result{Kind: ResultNotFound, Raw: raw}
}

// resultForNode maps a classified node onto the matching result variant.
func resultForNode(n Node) Result {
	switch n.Kind {
	case NodeArray:
		return arrayResult(n.Array)
	case NodeObject:
		return objectResult(n.Object)
	default:
		return notFoundResult(n.Raw)
	}
}
