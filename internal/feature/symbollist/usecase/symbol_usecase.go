// Package usecase implements the business logic for symbol-related operations.
package usecase

import (
	"context"
	"fmt"
	"sort"

	candleentity "candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/symbollist/domain/entity"
)

// SymbolRepository abstracts the store reads needed to list symbols.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	Symbols(ctx context.Context) ([]string, error)
	Latest(ctx context.Context, symbol string) (candleentity.Bar, bool, error)
}

// SymbolUsecase provides business logic for symbol operations.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListSymbols returns every stored symbol in code order with the time of its newest bar.
func (u *SymbolUsecase) ListSymbols(ctx context.Context) ([]entity.Symbol, error) {
	codes, err := u.repo.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	sort.Strings(codes)

	out := make([]entity.Symbol, 0, len(codes))
	for _, code := range codes {
		bar, found, err := u.repo.Latest(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("latest bar for %s: %w", code, err)
		}
		s := entity.Symbol{Code: code}
		if found {
			ts := bar.Time
			s.LatestAt = &ts
		}
		out = append(out, s)
	}
	return out, nil
}
