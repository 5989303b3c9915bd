package models

import (
	"strings"
	"time"
)

// ResolveRequest is the HTTP-facing arbitration request.
type ResolveRequest struct {
	Capability     string `query:"capability" json:"capability" validate:"required,oneof=equity-price crypto-price fx-rate fundamentals"`
	Entity         string `query:"entity" json:"entity" validate:"required,min=1,max=64"`
	Fields         string `query:"fields" json:"fields"` // comma separated, empty for source default set
	MaxStalenessMs int    `query:"max_staleness_ms" json:"max_staleness_ms" validate:"gte=0"`
	Fusion         bool   `query:"fusion" json:"fusion"`
	Depth          int    `query:"depth" json:"depth" default:"0" validate:"gte=0,lte=10"`
	NoCache        bool   `query:"no_cache" json:"no_cache"`
}

// ToRequest converts the DTO into the engine request form.
func (r *ResolveRequest) ToRequest() Request {
	var fields []string
	if r.Fields != "" {
		for _, f := range strings.Split(r.Fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}
	return Request{
		Capability:       Capability(r.Capability),
		Entity:           strings.ToUpper(strings.TrimSpace(r.Entity)),
		Fields:           fields,
		MaxStaleness:     time.Duration(r.MaxStalenessMs) * time.Millisecond,
		Fusion:           r.Fusion,
		MaxFallbackDepth: r.Depth,
	}
}
