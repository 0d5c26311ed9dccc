package capability

import "fmt"

// Operation is an action a grant authorizes.
type Operation string

// Operations a grant can carry.
const (
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationDelete Operation = "delete"
	OperationSearch Operation = "search"
)

// Grant couples a token with the single operation the caller was
// authorized for. The set of implementations is closed: ReadGrant,
// WriteGrant, DeleteGrant, SearchGrant. Holding a grant for one
// operation says nothing about any other.
type Grant interface {
	// Operation returns the authorized operation.
	Operation() Operation

	// Token returns the capability token backing the grant.
	Token() *Token

	// grant restricts implementations to this package.
	grant()
}

// ReadGrant authorizes reading.
type ReadGrant struct{ token *Token }

// WriteGrant authorizes writing.
type WriteGrant struct{ token *Token }

// DeleteGrant authorizes deletion.
type DeleteGrant struct{ token *Token }

// SearchGrant authorizes searching.
type SearchGrant struct{ token *Token }

func (g ReadGrant) Operation() Operation   { return OperationRead }
func (g WriteGrant) Operation() Operation  { return OperationWrite }
func (g DeleteGrant) Operation() Operation { return OperationDelete }
func (g SearchGrant) Operation() Operation { return OperationSearch }

func (g ReadGrant) Token() *Token   { return g.token }
func (g WriteGrant) Token() *Token  { return g.token }
func (g DeleteGrant) Token() *Token { return g.token }
func (g SearchGrant) Token() *Token { return g.token }

func (ReadGrant) grant()   {}
func (WriteGrant) grant()  {}
func (DeleteGrant) grant() {}
func (SearchGrant) grant() {}

// NewGrant builds the grant variant for an operation. Unknown
// operations are rejected rather than silently granted.
func NewGrant(op Operation, token *Token) (Grant, error) {
	switch op {
	case OperationRead:
		return ReadGrant{token: token}, nil
	case OperationWrite:
		return WriteGrant{token: token}, nil
	case OperationDelete:
		return DeleteGrant{token: token}, nil
	case OperationSearch:
		return SearchGrant{token: token}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}
