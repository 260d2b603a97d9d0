// Package di provides dependency injection factories for creating application components.
package di

import (
	"fmt"

	"candle_pipeline/internal/app/config"
	integrityusecase "candle_pipeline/internal/feature/integrity/usecase"
	"candle_pipeline/internal/platform/externalapi/twelvedata"
	infrahttp "candle_pipeline/internal/platform/http"
	"candle_pipeline/internal/platform/producer"
)

// NewMarketProducer creates the upstream producer selected by PRODUCER_KIND.
func NewMarketProducer(kind string) (integrityusecase.MarketProducer, error) {
	switch kind {
	case config.ProducerProcess:
		return producer.NewProcess(producer.LoadConfig()), nil
	case config.ProducerTwelveData:
		cfg := twelvedata.LoadConfig()
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("TWELVE_DATA_API_KEY is required for producer %q", kind)
		}
		httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
		return twelvedata.NewMarket(cfg, httpClient, nil), nil
	default:
		return nil, fmt.Errorf("unsupported producer %q", kind)
	}
}
