package metrics

import "expvar"

var (
	CalculationRequests = expvar.NewInt("calculation_requests")
	CalculationResults  = expvar.NewInt("calculation_results")
	ValidationErrors    = expvar.NewInt("validation_errors")
	UpstreamErrors      = expvar.NewInt("upstream_errors")
	CacheHits           = expvar.NewInt("marketdata_cache_hits")
	CacheMisses         = expvar.NewInt("marketdata_cache_misses")
)
