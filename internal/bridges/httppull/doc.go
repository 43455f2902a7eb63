// Package httppull backs pulled twin resources with HTTP endpoints.
//
// Each configured resource gets a Source whose Fetch is installed as the
// resource's pull function. Snapshot reads at the CACHED or HARD level call
// it on the gateway's pull path; the JSON response is narrowed to one field
// and converted to the resource kind.
//
//	pull:
//	  resources:
//	    - provider: meter
//	      service: power
//	      resource: watts
//	      kind: float
//	      url: http://meter.local/status
//	      field: data.watts
package httppull
