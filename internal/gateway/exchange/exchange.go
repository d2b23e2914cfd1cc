package exchange

import "context"

// MainEngine is the subset of the trading platform the algo engine relies
// on: contract and market lookups, order routing and error reporting.
type MainEngine interface {
	GetContract(vtSymbol string) (*Contract, bool)

	Subscribe(req SubscribeRequest, gatewayName string)

	// SendOrder returns the platform-wide order id (vtOrderID).
	SendOrder(req OrderRequest, gatewayName string) (string, error)

	GetOrder(vtOrderID string) (*Order, bool)

	CancelOrder(req CancelRequest, gatewayName string) error

	GetTick(vtSymbol string) (*Tick, bool)

	WriteError(content string)
}

// Document is a schemaless record stored in a DocumentStore collection.
type Document = map[string]any

// DocumentStore is the document database the main engine exposes. Filters
// are equality matches on top-level fields.
type DocumentStore interface {
	Upsert(ctx context.Context, db, collection string, doc Document, filter Document) error

	Query(ctx context.Context, db, collection string, filter Document, sortKey string) ([]Document, error)

	Delete(ctx context.Context, db, collection string, filter Document) error
}
