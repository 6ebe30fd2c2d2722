package health

import "context"

// CatalogPinger checks catalog database availability.
type CatalogPinger interface {
	Ping(ctx context.Context) error
}

// StorePinger checks dataset store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}
